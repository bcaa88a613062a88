package redeem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/guard"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/provision"
	"vps-rewards-lite/internal/session"
	"vps-rewards-lite/internal/store"
)

const (
	Cost = 1000

	// Horizon is how long a provisioned VM is expected to live.
	Horizon = 6 * time.Hour
)

type AccountStore interface {
	GetAccount(ctx context.Context, id string) (model.Account, bool, error)
	Increment(ctx context.Context, id string, d model.Delta) (model.Account, error)
}

type RecordStore interface {
	CreateVPS(ctx context.Context, rec model.VPSRecord) error
}

type Options struct {
	Workflow string
	Ref      string
	Endpoint model.Endpoint
	Now      func() time.Time
	NewID    func() (string, error)
	Guard    *guard.Guard
}

type Result struct {
	Record   model.VPSRecord
	Endpoint model.Endpoint
	Balance  int64
}

type Eligibility struct {
	Eligible  bool  `json:"eligible"`
	Balance   int64 `json:"balance"`
	Required  int64 `json:"required"`
	Shortfall int64 `json:"shortfall"`
}

// Engine exchanges points for a provisioned VM.
type Engine struct {
	accounts AccountStore
	records  RecordStore
	gateway  provision.Gateway

	workflow string
	ref      string
	endpoint model.Endpoint
	now      func() time.Time
	newID    func() (string, error)
	guard    *guard.Guard
}

func New(accounts AccountStore, records RecordStore, gateway provision.Gateway, opts Options) *Engine {
	e := &Engine{
		accounts: accounts,
		records:  records,
		gateway:  gateway,
		workflow: opts.Workflow,
		ref:      opts.Ref,
		endpoint: opts.Endpoint,
		now:      opts.Now,
		newID:    opts.NewID,
		guard:    opts.Guard,
	}
	if e.workflow == "" {
		e.workflow = provision.DefaultWorkflow
	}
	if e.ref == "" {
		e.ref = provision.DefaultRef
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = newRecordID
	}
	if e.guard == nil {
		e.guard = guard.New()
	}
	return e
}

// newRecordID returns a time-ordered id so records sort by creation.
func newRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (e *Engine) Eligibility(sess *session.Session) (Eligibility, error) {
	if _, ok := sess.Principal(); !ok {
		return Eligibility{}, apperr.ErrUnauthenticated
	}
	balance := sess.CachedPoints()
	el := Eligibility{Eligible: balance >= Cost, Balance: balance, Required: Cost}
	if !el.Eligible {
		el.Shortfall = Cost - balance
	}
	return el, nil
}

// Redeem debits Cost points, dispatches provisioning and refunds the points
// if the gateway rejects or cannot be reached. Only one redemption per
// principal runs at a time.
func (e *Engine) Redeem(ctx context.Context, sess *session.Session, in provision.Inputs) (Result, error) {
	p, ok := sess.Principal()
	if !ok {
		return Result{}, apperr.ErrUnauthenticated
	}
	in.OSVersion = strings.TrimSpace(in.OSVersion)
	in.Language = strings.TrimSpace(in.Language)
	if in.OSVersion == "" || in.Language == "" {
		return Result{}, apperr.ErrInvalidOptions
	}

	release, ok := e.guard.TryAcquire("redeem|" + p.ID)
	if !ok {
		return Result{}, apperr.ErrRedemptionInProgress
	}
	defer release()

	balance := sess.CachedPoints()
	if balance < Cost {
		return Result{}, &apperr.InsufficientBalanceError{Balance: balance, Required: Cost, Shortfall: Cost - balance}
	}

	// From the debit on the caller cannot cancel; a dispatch the gateway
	// already received is never refunded.
	ctx = context.WithoutCancel(ctx)

	if _, err := e.accounts.Increment(ctx, p.ID, model.Delta{Points: -Cost, VPSCreated: 1}); err != nil {
		if errors.Is(err, store.ErrInsufficientPoints) {
			return Result{}, e.staleBalance(ctx, sess, p.ID)
		}
		return Result{}, fmt.Errorf("%w: debit: %v", apperr.ErrTransport, err)
	}
	balance = sess.ApplyDelta(-Cost)

	accepted, err := e.gateway.Dispatch(ctx, provision.Dispatch{Workflow: e.workflow, Ref: e.ref, Inputs: in})
	if err != nil || !accepted {
		return Result{}, e.compensate(ctx, sess, p.ID, err)
	}

	now := e.now()
	rec := model.VPSRecord{
		UserID:    p.ID,
		OSVersion: in.OSVersion,
		Language:  in.Language,
		Status:    model.VPSStatusCreating,
		CreatedAt: now,
		ExpiresAt: now.Add(Horizon),
	}
	if rec.ID, err = e.newID(); err != nil {
		rec.ID = fmt.Sprintf("%d", now.UnixMilli())
	}
	// The workflow is already running; a lost record does not undo the debit.
	if err := e.records.CreateVPS(ctx, rec); err != nil {
		log.Printf("redeem: save vps record failed (%s): %v", p.ID, err)
	}

	return Result{Record: rec, Endpoint: e.endpoint, Balance: balance}, nil
}

// staleBalance resyncs the cache after the store refused the debit and
// reports the shortfall against the stored balance.
func (e *Engine) staleBalance(ctx context.Context, sess *session.Session, principalID string) error {
	balance := sess.CachedPoints()
	acc, ok, err := e.accounts.GetAccount(ctx, principalID)
	if err != nil || !ok {
		log.Printf("redeem: reload balance failed (%s): %v", principalID, err)
	} else {
		sess.Resync(acc.Points)
		balance = acc.Points
	}
	shortfall := Cost - balance
	if shortfall < 1 {
		shortfall = 1
	}
	return &apperr.InsufficientBalanceError{Balance: balance, Required: Cost, Shortfall: shortfall}
}

// compensate refunds the debit with a fresh credit. A failed refund leaves
// the principal debited; there is no retry.
func (e *Engine) compensate(ctx context.Context, sess *session.Session, principalID string, cause error) error {
	if cause == nil {
		cause = fmt.Errorf("workflow dispatch rejected")
	}
	if _, err := e.accounts.Increment(ctx, principalID, model.Delta{Points: Cost}); err != nil {
		log.Printf("redeem: refund failed (%s): %v", principalID, err)
		return &apperr.ProvisioningFailedError{Compensated: false, Cause: cause}
	}
	sess.ApplyDelta(Cost)
	return &apperr.ProvisioningFailedError{Compensated: true, Cause: cause}
}
