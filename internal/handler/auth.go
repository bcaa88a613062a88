package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/adview"
	"vps-rewards-lite/internal/auth"
	"vps-rewards-lite/internal/middleware"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/session"
)

type IdentityVerifier interface {
	Verify(idToken string) (model.Principal, error)
}

type AuthHandler struct {
	Sessions    *session.Registry
	Ads         *adview.Manager
	Verifier    IdentityVerifier
	TokenConfig auth.TokenConfig
	Publisher   notify.Publisher
}

type signInBody struct {
	IDToken string `json:"idToken"`
}

// SignIn exchanges an identity provider ID token for a service token and
// establishes the session.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var body signInBody
	if err := c.ShouldBindJSON(&body); err != nil || body.IDToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	principal, err := h.Verifier.Verify(body.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
		return
	}

	res, err := h.Sessions.Establish(c.Request.Context(), principal)
	if err != nil {
		log.Printf("auth: establish session failed (%s): %v", principal.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Login failed. Please try again.", "code": "transport_error"})
		return
	}

	token, err := auth.CreateToken(principal.ID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	if res.NewAccount {
		notice(h.Publisher, principal.ID, notify.LevelSuccess, "Welcome! You received 300 bonus points!")
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"newAccount": res.NewAccount,
		"points":     res.Session.CachedPoints(),
		"user": gin.H{
			"id":          principal.ID,
			"email":       principal.Email,
			"displayName": principal.DisplayName,
			"photoURL":    principal.PhotoURL,
		},
	})
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token", "code": "unauthenticated"})
		return
	}

	// An ad watched before sign-out is forfeited.
	if h.Ads != nil {
		h.Ads.Cancel(userID)
	}
	h.Sessions.Clear(userID)
	notice(h.Publisher, userID, notify.LevelSuccess, "Logged out successfully!")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
