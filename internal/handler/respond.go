package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/adview"
	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/middleware"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/redeem"
	"vps-rewards-lite/internal/session"
)

type failure struct {
	status  int
	code    string
	message string
	level   notify.Level
	extra   gin.H
}

func describe(err error) failure {
	var insufficient *apperr.InsufficientBalanceError
	var provisioning *apperr.ProvisioningFailedError

	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return failure{http.StatusUnauthorized, "unauthenticated", "Please login first!", notify.LevelWarning, nil}
	case errors.Is(err, apperr.ErrAlreadyClaimedToday):
		return failure{http.StatusConflict, "already_claimed_today", "Daily bonus already claimed today!", notify.LevelWarning, nil}
	case errors.As(err, &insufficient):
		return failure{http.StatusUnprocessableEntity, "insufficient_balance",
			fmt.Sprintf("You need %d more points to redeem VPS!", insufficient.Shortfall), notify.LevelWarning,
			gin.H{"shortfall": insufficient.Shortfall, "required": insufficient.Required, "points": insufficient.Balance}}
	case errors.As(err, &provisioning):
		if provisioning.Compensated {
			return failure{http.StatusBadGateway, "provisioning_failed", "Failed to create VPS. Points refunded.", notify.LevelError, gin.H{"compensated": true}}
		}
		return failure{http.StatusBadGateway, "provisioning_failed", "Failed to create VPS. Refund failed, please contact support.", notify.LevelError, gin.H{"compensated": false}}
	case errors.Is(err, apperr.ErrCreditFailed):
		return failure{http.StatusServiceUnavailable, "credit_failed", "Failed to add points", notify.LevelError, nil}
	case errors.Is(err, apperr.ErrTransport):
		return failure{http.StatusBadGateway, "transport_error", "Service unavailable, please try again.", notify.LevelError, nil}
	case errors.Is(err, apperr.ErrClaimLocked):
		return failure{http.StatusConflict, "claim_locked", "Finish watching the ad to claim your reward.", notify.LevelWarning, nil}
	case errors.Is(err, adview.ErrTicksScheduled):
		return failure{http.StatusConflict, "ticks_scheduled", "The ad timer is already running.", notify.LevelInfo, nil}
	case errors.Is(err, apperr.ErrRedemptionInProgress):
		return failure{http.StatusConflict, "redemption_in_progress", "Your VPS is already being created.", notify.LevelWarning, nil}
	case errors.Is(err, apperr.ErrInvalidOptions):
		return failure{http.StatusBadRequest, "invalid_options", "Choose an OS version and a language.", notify.LevelWarning, nil}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusRequestTimeout, "cancelled", "Request cancelled.", notify.LevelInfo, nil}
	default:
		return failure{http.StatusInternalServerError, "internal", "Something went wrong.", notify.LevelError, nil}
	}
}

// fail answers with the JSON error for err and mirrors it as a notice.
func fail(c *gin.Context, pub notify.Publisher, userID string, err error) {
	f := describe(err)
	if f.status >= http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{"success": false, "error": f.message, "code": f.code}
	for k, v := range f.extra {
		body[k] = v
	}
	if pub != nil && userID != "" {
		pub.Notice(userID, f.level, f.message)
	}
	c.JSON(f.status, body)
}

func notice(pub notify.Publisher, userID string, level notify.Level, message string) {
	if pub != nil {
		pub.Notice(userID, level, message)
	}
}

func pointsChanged(pub notify.Publisher, userID string, points int64) {
	if pub != nil {
		pub.Event(userID, "points", gin.H{"points": points, "progress": progress(points)})
	}
}

// currentSession resolves the signed-in session for the token's user. A
// token whose session was cleared is treated as unauthenticated.
func currentSession(c *gin.Context, sessions *session.Registry) (string, *session.Session, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		fail(c, nil, "", apperr.ErrUnauthenticated)
		return "", nil, false
	}
	sess, ok := sessions.Get(userID)
	if !ok {
		fail(c, nil, "", apperr.ErrUnauthenticated)
		return "", nil, false
	}
	return userID, sess, true
}

// progress is the percentage of the way to a redemption, capped at 100.
func progress(points int64) float64 {
	p := float64(points) / redeem.Cost * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
