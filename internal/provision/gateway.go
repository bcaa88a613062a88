package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"vps-rewards-lite/internal/apperr"
)

const (
	DefaultWorkflow = "WindowsRDP.yml"
	DefaultRef      = "main"
)

type Inputs struct {
	OSVersion string
	Language  string
}

// Dispatch names the workflow run to start.
type Dispatch struct {
	Workflow string
	Ref      string
	Inputs   Inputs
}

// Gateway starts VM provisioning. Accepted only means the run was queued;
// nothing reports whether the VM actually came up.
type Gateway interface {
	Dispatch(ctx context.Context, d Dispatch) (accepted bool, err error)
}

type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	APIURL  string
	Timeout time.Duration
}

// GitHubGateway dispatches GitHub Actions workflows. The token stays on the
// server.
type GitHubGateway struct {
	client *github.Client
	owner  string
	repo   string
	ready  bool
}

func NewGitHubGateway(cfg GitHubConfig) (*GitHubGateway, error) {
	client := github.NewClient(&http.Client{Timeout: cfg.Timeout})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = base
	}

	return &GitHubGateway{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		ready:  cfg.Token != "" && cfg.Owner != "" && cfg.Repo != "",
	}, nil
}

func (g *GitHubGateway) Dispatch(ctx context.Context, d Dispatch) (bool, error) {
	if !g.ready {
		log.Printf("provision: github gateway not configured, rejecting dispatch")
		return false, nil
	}
	workflow := d.Workflow
	if workflow == "" {
		workflow = DefaultWorkflow
	}
	ref := d.Ref
	if ref == "" {
		ref = DefaultRef
	}

	event := github.CreateWorkflowDispatchEventRequest{
		Ref: ref,
		Inputs: map[string]interface{}{
			"os_version": d.Inputs.OSVersion,
			"language":   d.Inputs.Language,
		},
	}
	resp, err := g.client.Actions.CreateWorkflowDispatchEventByFileName(ctx, g.owner, g.repo, workflow, event)
	if err != nil {
		if resp != nil && resp.Response != nil {
			log.Printf("provision: dispatch rejected (%d): %v", resp.StatusCode, err)
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", apperr.ErrTransport, err)
	}
	if resp == nil || resp.StatusCode/100 != 2 {
		return false, nil
	}
	return true, nil
}

// IsTransport reports whether err came from failing to reach the gateway.
func IsTransport(err error) bool {
	return errors.Is(err, apperr.ErrTransport)
}
