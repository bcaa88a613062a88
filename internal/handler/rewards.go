package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/adview"
	"vps-rewards-lite/internal/ledger"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/session"
)

type RewardHandler struct {
	Sessions  *session.Registry
	Ledger    *ledger.Ledger
	Ads       *adview.Manager
	Publisher notify.Publisher
}

func (h *RewardHandler) credited(c *gin.Context, userID string, awarded, balance int64) {
	notice(h.Publisher, userID, notify.LevelSuccess, fmt.Sprintf("+%d points earned!", awarded))
	pointsChanged(h.Publisher, userID, balance)
	c.JSON(http.StatusOK, gin.H{"success": true, "awarded": awarded, "points": balance, "progress": progress(balance)})
}

func (h *RewardHandler) OpenAd(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	status, err := h.Ads.Open(sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": status})
}

func (h *RewardHandler) TickAd(c *gin.Context) {
	userID, _, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	status, err := h.Ads.Tick(userID)
	if err != nil {
		fail(c, nil, userID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": status})
}

func (h *RewardHandler) CancelAd(c *gin.Context) {
	userID, _, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	h.Ads.Cancel(userID)
	c.JSON(http.StatusOK, gin.H{"success": true, "ad": h.Ads.Status(userID)})
}

func (h *RewardHandler) ClaimAd(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	balance, err := h.Ads.Claim(c.Request.Context(), sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	h.credited(c, userID, ledger.AdReward, balance)
}

func (h *RewardHandler) ShortLink(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	notice(h.Publisher, userID, notify.LevelInfo, "Completing short link...")
	balance, err := h.Ledger.CompleteShortLink(c.Request.Context(), sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	h.credited(c, userID, ledger.ShortLinkReward, balance)
}

func (h *RewardHandler) DailyBonus(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	balance, err := h.Ledger.ClaimDailyBonus(c.Request.Context(), sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	h.credited(c, userID, ledger.DailyBonusReward, balance)
}

func (h *RewardHandler) SpecialMission(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}
	balance, err := h.Ledger.CompleteSpecialMission(c.Request.Context(), sess)
	if err != nil {
		fail(c, h.Publisher, userID, err)
		return
	}
	notice(h.Publisher, userID, notify.LevelSuccess, "Special mission completed!")
	h.credited(c, userID, ledger.SpecialMissionReward, balance)
}
