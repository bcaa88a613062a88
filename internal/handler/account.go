package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/session"
)

type AccountReader interface {
	GetAccount(ctx context.Context, id string) (model.Account, bool, error)
}

type AccountHandler struct {
	Sessions *session.Registry
	Accounts AccountReader
}

// Profile returns the stored account with the session's cached balance.
func (h *AccountHandler) Profile(c *gin.Context) {
	userID, sess, ok := currentSession(c, h.Sessions)
	if !ok {
		return
	}

	acc, exists, err := h.Accounts.GetAccount(c.Request.Context(), userID)
	if err != nil || !exists {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not load account", "code": "transport_error"})
		return
	}

	points := sess.CachedPoints()
	c.JSON(http.StatusOK, gin.H{
		"id":             acc.ID,
		"email":          acc.Email,
		"displayName":    acc.DisplayName,
		"photoURL":       acc.PhotoURL,
		"points":         points,
		"progress":       progress(points),
		"totalEarned":    acc.TotalEarned,
		"vpsCreated":     acc.VPSCreated,
		"createdAt":      acc.CreatedAt,
		"lastLogin":      acc.LastLogin,
		"lastDailyBonus": acc.LastDailyBonus,
	})
}
