package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"vps-rewards-lite/internal/adview"
	"vps-rewards-lite/internal/auth"
	"vps-rewards-lite/internal/guard"
	"vps-rewards-lite/internal/handler"
	"vps-rewards-lite/internal/ledger"
	"vps-rewards-lite/internal/middleware"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/provision"
	"vps-rewards-lite/internal/redeem"
	"vps-rewards-lite/internal/session"
	"vps-rewards-lite/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Verifier    handler.IdentityVerifier
	Gateway     provision.Gateway
	Hub         *notify.Hub

	// AdTickInterval drives the ad countdown; zero means clients deliver
	// ticks through POST /v1/rewards/ad/tick.
	AdTickInterval time.Duration
	Ledger         ledger.Options
	Redeem         redeem.Options
}

// NewRouter builds the engine. stop releases the background work the router
// owns and must be called once the engine is no longer served.
func NewRouter(deps Deps) (r *gin.Engine, stop func()) {
	r = gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	hub := deps.Hub
	if hub == nil {
		hub = notify.New()
	}
	locks := guard.New()
	ledgerOpts := deps.Ledger
	ledgerOpts.Guard = locks
	redeemOpts := deps.Redeem
	redeemOpts.Guard = locks

	sessions := session.NewRegistry(deps.Store)
	rewardLedger := ledger.New(deps.Store, ledgerOpts)
	ads := adview.NewManager(rewardLedger, adview.Options{Interval: deps.AdTickInterval, Publisher: hub})
	engine := redeem.New(deps.Store, deps.Store, deps.Gateway, redeemOpts)

	signInLimiter := middleware.NewRateLimiter(10, time.Minute)
	rewardLimiter := middleware.NewRateLimiter(60, time.Minute)

	authHandler := &handler.AuthHandler{Sessions: sessions, Ads: ads, Verifier: deps.Verifier, TokenConfig: deps.TokenConfig, Publisher: hub}
	r.POST("/v1/auth", middleware.RateLimitMiddleware(signInLimiter), authHandler.SignIn)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.POST("/auth/logout", authHandler.SignOut)

	accountHandler := &handler.AccountHandler{Sessions: sessions, Accounts: deps.Store}
	protected.GET("/account", accountHandler.Profile)

	rewardHandler := &handler.RewardHandler{Sessions: sessions, Ledger: rewardLedger, Ads: ads, Publisher: hub}
	rewards := protected.Group("/rewards")
	rewards.Use(middleware.RateLimitMiddleware(rewardLimiter))
	rewards.POST("/ad", rewardHandler.OpenAd)
	rewards.DELETE("/ad", rewardHandler.CancelAd)
	rewards.POST("/ad/tick", rewardHandler.TickAd)
	rewards.POST("/ad/claim", rewardHandler.ClaimAd)
	rewards.POST("/shortlink", rewardHandler.ShortLink)
	rewards.POST("/daily", rewardHandler.DailyBonus)
	rewards.POST("/mission", rewardHandler.SpecialMission)

	vpsHandler := &handler.VPSHandler{Sessions: sessions, Engine: engine, Records: deps.Store, Publisher: hub}
	protected.GET("/vps", vpsHandler.List)
	protected.GET("/vps/eligibility", vpsHandler.Eligibility)
	protected.POST("/vps", vpsHandler.Redeem)

	wsHandler := &handler.WebSocketHandler{Hub: hub, Sessions: sessions, Ads: ads, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	stop = func() {
		signInLimiter.Close()
		rewardLimiter.Close()
	}
	return r, stop
}
