package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"vps-rewards-lite/internal/auth"
	"vps-rewards-lite/internal/config"
	"vps-rewards-lite/internal/identity"
	"vps-rewards-lite/internal/ledger"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/notify"
	"vps-rewards-lite/internal/provision"
	"vps-rewards-lite/internal/redeem"
	"vps-rewards-lite/internal/server"
	"vps-rewards-lite/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	st := store.NewWithOptions(store.Options{StateFile: cfg.StateFile})

	verifier, err := identity.NewVerifier(cfg.IdentityPublicKey, cfg.IdentityIssuer)
	if err != nil {
		log.Fatal(err)
	}

	gateway, err := provision.NewGitHubGateway(provision.GitHubConfig{
		Token:   cfg.GitHubToken,
		Owner:   cfg.GitHubOwner,
		Repo:    cfg.GitHubRepo,
		APIURL:  cfg.GitHubAPIURL,
		Timeout: cfg.ProvisionTimeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	if cfg.GitHubToken == "" {
		log.Printf("GITHUB_TOKEN not set, VPS redemptions will be refunded")
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: auth.DefaultIssuer,
	}

	router, stop := server.NewRouter(server.Deps{
		Store:          st,
		TokenConfig:    tokenCfg,
		Verifier:       verifier,
		Gateway:        gateway,
		Hub:            notify.New(),
		AdTickInterval: cfg.AdTickInterval,
		Ledger: ledger.Options{
			Location:       cfg.BonusLocation,
			ShortLinkDelay: cfg.ShortLinkDelay,
		},
		Redeem: redeem.Options{
			Workflow: cfg.GitHubWorkflow,
			Ref:      cfg.GitHubRef,
			Endpoint: model.Endpoint{
				RDPAddress: cfg.VPSRDPAddress,
				WebURL:     cfg.VPSWebURL,
				Username:   cfg.VPSUsername,
			},
		},
	})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	err = server.Run(cfg, router)
	stop()
	log.Fatal(err)
}
