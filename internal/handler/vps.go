package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/provision"
	"vps-rewards-lite/internal/redeem"
	"vps-rewards-lite/internal/session"
)

type VPSLister interface {
	ListVPS(ctx context.Context, userID string) ([]model.VPSRecord, error)
}

type VPSHandler struct {
	Sessions  *session.Registry
	Engine    *redeem.Engine
	Records   VPSLister
	Publisher notify.Publisher
}

type redeemBody struct {
	OSVersion string `json:"osVersion"`
	Language  string `json:"language"`
}

func (h *VPSHandler) Eligibility(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	el, err := h.Engine.Eligibility(sess)
	if err != nil {
		fail(c, nil, userID, err)
		return
	}
	c.JSON(http.StatusOK, el)
}

func (h *VPSHandler) Redeem(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}

	var body redeemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	in := provision.Inputs{OSVersion: strings.TrimSpace(body.OSVersion), Language: strings.TrimSpace(body.Language)}
	if in.OSVersion == "" || in.Language == "" {
		fail(c, h.Publisher, userID, apperr.ErrInvalidOptions)
		return
	}
	el, err := h.Engine.Eligibility(sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	if !el.Eligible {
		fail(c, h.Publisher, userID, &apperr.InsufficientBalanceError{Balance: el.Balance, Required: el.Required, Shortfall: el.Shortfall})
		return
	}

	notice(h.Publisher, userID, notify.LevelInfo, "Creating your VPS... Please wait...")
	res, err := h.Engine.Redeem(c.Request.Context(), sess, in)
	if err != nil {
		// Both leave the cache moved: a refund, or a resync after the store
		// refused the debit.
		var provisioning *apperr.ProvisioningFailedError
		var insufficient *apperr.InsufficientBalanceError
		if errors.As(err, &provisioning) || errors.As(err, &insufficient) {
			pointsChanged(h.Publisher, userID, sess.CachedPoints())
		}
		fail(c, h.Publisher, userID, err)
		return
	}
	pointsChanged(h.Publisher, userID, res.Balance)

	notice(h.Publisher, userID, notify.LevelSuccess, "VPS created successfully!")
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"points":     res.Balance,
		"vps":        res.Record,
		"connection": res.Endpoint,
	})
}

func (h *VPSHandler) List(c *gin.Context) {
	userID, _, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}

	records, err := h.Records.ListVPS(c.Request.Context(), userID)
	if err != nil {
		fail(c, nil, userID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vps": records})
}
