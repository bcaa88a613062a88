package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration

	IdentityPublicKey string
	IdentityIssuer    string

	StateFile string

	GitHubToken      string
	GitHubOwner      string
	GitHubRepo       string
	GitHubWorkflow   string
	GitHubRef        string
	GitHubAPIURL     string
	ProvisionTimeout time.Duration

	AdTickInterval time.Duration
	ShortLinkDelay time.Duration
	BonusLocation  *time.Location

	VPSRDPAddress string
	VPSWebURL     string
	VPSUsername   string
}

type rawConfig struct {
	Port               int    `env:"PORT"                 envDefault:"3000"`
	MasterSecret       string `env:"MASTER_SECRET"`
	GinMode            string `env:"GIN_MODE"             envDefault:"release"`
	TLSCertFile        string `env:"TLS_CERT_FILE"`
	TLSKeyFile         string `env:"TLS_KEY_FILE"`
	TokenExpirySeconds int    `env:"TOKEN_EXPIRY_SECONDS" envDefault:"604800"`

	IdentityPublicKey string `env:"IDENTITY_PUBLIC_KEY"`
	IdentityIssuer    string `env:"IDENTITY_ISSUER"`

	StateFile string `env:"STATE_FILE"`

	GitHubToken      string        `env:"GITHUB_TOKEN"`
	GitHubOwner      string        `env:"GITHUB_OWNER"`
	GitHubRepo       string        `env:"GITHUB_REPO"`
	GitHubWorkflow   string        `env:"GITHUB_WORKFLOW"   envDefault:"WindowsRDP.yml"`
	GitHubRef        string        `env:"GITHUB_REF"        envDefault:"main"`
	GitHubAPIURL     string        `env:"GITHUB_API_URL"`
	ProvisionTimeout time.Duration `env:"PROVISION_TIMEOUT" envDefault:"0s"`

	AdTickInterval time.Duration `env:"AD_TICK_INTERVAL" envDefault:"1s"`
	ShortLinkDelay time.Duration `env:"SHORTLINK_DELAY"  envDefault:"2s"`
	BonusTimezone  string        `env:"BONUS_TIMEZONE"   envDefault:"Local"`

	VPSRDPAddress string `env:"VPS_RDP_ADDRESS" envDefault:"123.45.67.89:3389"`
	VPSWebURL     string `env:"VPS_WEB_URL"     envDefault:"http://123.45.67.89:8006"`
	VPSUsername   string `env:"VPS_USERNAME"    envDefault:"Admin"`
}

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(env.ToMap(os.Environ()))
}

func LoadConfigFromEnv(environ map[string]string) (Config, error) {
	var raw rawConfig
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if raw.Port <= 0 || raw.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}
	if raw.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}
	if raw.IdentityPublicKey == "" {
		return Config{}, fmt.Errorf("IDENTITY_PUBLIC_KEY is required")
	}
	if raw.TokenExpirySeconds <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
	}
	if raw.AdTickInterval < 0 || raw.ShortLinkDelay < 0 || raw.ProvisionTimeout < 0 {
		return Config{}, fmt.Errorf("durations must not be negative")
	}

	loc, err := time.LoadLocation(raw.BonusTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BONUS_TIMEZONE: %w", err)
	}

	return Config{
		Port:              raw.Port,
		MasterSecret:      raw.MasterSecret,
		GinMode:           raw.GinMode,
		TLSCertFile:       raw.TLSCertFile,
		TLSKeyFile:        raw.TLSKeyFile,
		TokenExpiry:       time.Duration(raw.TokenExpirySeconds) * time.Second,
		IdentityPublicKey: raw.IdentityPublicKey,
		IdentityIssuer:    raw.IdentityIssuer,
		StateFile:         raw.StateFile,
		GitHubToken:       raw.GitHubToken,
		GitHubOwner:       raw.GitHubOwner,
		GitHubRepo:        raw.GitHubRepo,
		GitHubWorkflow:    raw.GitHubWorkflow,
		GitHubRef:         raw.GitHubRef,
		GitHubAPIURL:      raw.GitHubAPIURL,
		ProvisionTimeout:  raw.ProvisionTimeout,
		AdTickInterval:    raw.AdTickInterval,
		ShortLinkDelay:    raw.ShortLinkDelay,
		BonusLocation:     loc,
		VPSRDPAddress:     raw.VPSRDPAddress,
		VPSWebURL:         raw.VPSWebURL,
		VPSUsername:       raw.VPSUsername,
	}, nil
}
