package redeem

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vps-rewards-lite/internal/apperr"
	"vps-rewards-lite/internal/model"
	"vps-rewards-lite/internal/provision"
	"vps-rewards-lite/internal/session"
	"vps-rewards-lite/internal/store"
)

type fakeGateway struct {
	mu       sync.Mutex
	accepted bool
	err      error
	calls    []provision.Dispatch
	block    chan struct{}
}

func (g *fakeGateway) Dispatch(_ context.Context, d provision.Dispatch) (bool, error) {
	g.mu.Lock()
	g.calls = append(g.calls, d)
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	return g.accepted, g.err
}

// refundFailingStore fails every positive points increment.
type refundFailingStore struct {
	*store.Store
}

func (s *refundFailingStore) Increment(ctx context.Context, id string, d model.Delta) (model.Account, error) {
	if d.Points > 0 {
		return model.Account{}, errors.New("unavailable")
	}
	return s.Store.Increment(ctx, id, d)
}

var fixedNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T, points int64) (*store.Store, *session.Session) {
	t.Helper()
	st := store.New()
	ctx := context.Background()
	if err := st.CreateAccount(ctx, model.Account{ID: "u1", Points: points, TotalEarned: points}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	res, err := session.NewRegistry(st).Establish(ctx, model.Principal{ID: "u1"})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	return st, res.Session
}

var opts = provision.Inputs{OSVersion: "2022", Language: "en-US"}

func TestRedeem_InsufficientBalanceReportsShortfall(t *testing.T) {
	st, sess := seeded(t, 999)
	gw := &fakeGateway{accepted: true}
	e := New(st, st, gw, Options{Now: func() time.Time { return fixedNow }})

	_, err := e.Redeem(context.Background(), sess, opts)
	var insufficient *apperr.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Shortfall != 1 {
		t.Fatalf("expected shortfall 1, got %d", insufficient.Shortfall)
	}
	acc, _, _ := st.GetAccount(context.Background(), "u1")
	if acc.Points != 999 || acc.VPSCreated != 0 || len(gw.calls) != 0 {
		t.Fatalf("expected no debit and no dispatch, got %+v calls=%d", acc, len(gw.calls))
	}
}

func TestRedeem_AcceptedDebitsAndRecords(t *testing.T) {
	st, sess := seeded(t, 1500)
	gw := &fakeGateway{accepted: true}
	endpoint := model.Endpoint{RDPAddress: "203.0.113.10:3389", WebURL: "http://203.0.113.10:8006", Username: "Admin"}
	e := New(st, st, gw, Options{Now: func() time.Time { return fixedNow }, Endpoint: endpoint})
	ctx := context.Background()

	res, err := e.Redeem(ctx, sess, opts)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Balance != 500 || sess.CachedPoints() != 500 {
		t.Fatalf("expected balance 500, got %d/%d", res.Balance, sess.CachedPoints())
	}
	acc, _, _ := st.GetAccount(ctx, "u1")
	if acc.Points != 500 || acc.VPSCreated != 1 || acc.TotalEarned != 1500 {
		t.Fatalf("unexpected account %+v", acc)
	}
	if len(gw.calls) != 1 || gw.calls[0].Workflow != "WindowsRDP.yml" || gw.calls[0].Ref != "main" || gw.calls[0].Inputs != opts {
		t.Fatalf("unexpected dispatch %+v", gw.calls)
	}
	if res.Record.Status != model.VPSStatusCreating || !res.Record.ExpiresAt.Equal(fixedNow.Add(6*time.Hour)) || res.Record.ID == "" {
		t.Fatalf("unexpected record %+v", res.Record)
	}
	if res.Endpoint != endpoint {
		t.Fatalf("unexpected endpoint %+v", res.Endpoint)
	}
	list, _ := st.ListVPS(ctx, "u1")
	if len(list) != 1 || list[0].ID != res.Record.ID {
		t.Fatalf("expected stored record, got %+v", list)
	}
}

func TestRedeem_RejectedIsCompensated(t *testing.T) {
	st, sess := seeded(t, 1500)
	e := New(st, st, &fakeGateway{accepted: false}, Options{})
	ctx := context.Background()

	_, err := e.Redeem(ctx, sess, opts)
	var failed *apperr.ProvisioningFailedError
	if !errors.As(err, &failed) || !failed.Compensated {
		t.Fatalf("expected compensated ProvisioningFailedError, got %v", err)
	}
	acc, _, _ := st.GetAccount(ctx, "u1")
	if acc.Points != 1500 || sess.CachedPoints() != 1500 {
		t.Fatalf("expected refund to 1500, got store=%d cache=%d", acc.Points, sess.CachedPoints())
	}
	if acc.TotalEarned != 1500 {
		t.Fatalf("refund must not count as earned, got %d", acc.TotalEarned)
	}
	if acc.VPSCreated != 1 {
		t.Fatalf("expected vpsCreated left at 1, got %d", acc.VPSCreated)
	}
	list, _ := st.ListVPS(ctx, "u1")
	if len(list) != 0 {
		t.Fatalf("expected no record on failure")
	}
}

func TestRedeem_TransportFailureIsCompensated(t *testing.T) {
	st, sess := seeded(t, 1000)
	gw := &fakeGateway{err: apperr.ErrTransport}
	e := New(st, st, gw, Options{})

	_, err := e.Redeem(context.Background(), sess, opts)
	var failed *apperr.ProvisioningFailedError
	if !errors.As(err, &failed) || !failed.Compensated {
		t.Fatalf("expected compensated failure, got %v", err)
	}
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}
	if sess.CachedPoints() != 1000 {
		t.Fatalf("expected refund, got %d", sess.CachedPoints())
	}
}

func TestRedeem_RefundFailureLeavesDebit(t *testing.T) {
	base, sess := seeded(t, 1500)
	st := &refundFailingStore{Store: base}
	e := New(st, st, &fakeGateway{accepted: false}, Options{})

	_, err := e.Redeem(context.Background(), sess, opts)
	var failed *apperr.ProvisioningFailedError
	if !errors.As(err, &failed) || failed.Compensated {
		t.Fatalf("expected uncompensated failure, got %v", err)
	}
	acc, _, _ := base.GetAccount(context.Background(), "u1")
	if acc.Points != 500 || sess.CachedPoints() != 500 {
		t.Fatalf("expected principal left debited, got store=%d cache=%d", acc.Points, sess.CachedPoints())
	}
}

func TestRedeem_ConcurrentRedemptionRejected(t *testing.T) {
	st, sess := seeded(t, 2500)
	gw := &fakeGateway{accepted: true, block: make(chan struct{})}
	e := New(st, st, gw, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.Redeem(ctx, sess, opts)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		gw.mu.Lock()
		n := len(gw.calls)
		gw.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first redemption never reached the gateway")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := e.Redeem(ctx, sess, opts); !errors.Is(err, apperr.ErrRedemptionInProgress) {
		t.Fatalf("expected ErrRedemptionInProgress, got %v", err)
	}
	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if sess.CachedPoints() != 1500 {
		t.Fatalf("expected exactly one debit, got %d", sess.CachedPoints())
	}
}

func TestRedeem_RequiresPrincipalAndOptions(t *testing.T) {
	st, sess := seeded(t, 1500)
	e := New(st, st, &fakeGateway{accepted: true}, Options{})

	if _, err := e.Redeem(context.Background(), &session.Session{}, opts); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := e.Redeem(context.Background(), sess, provision.Inputs{OSVersion: " "}); !errors.Is(err, apperr.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestEligibility(t *testing.T) {
	st, sess := seeded(t, 740)
	e := New(st, st, &fakeGateway{}, Options{})

	el, err := e.Eligibility(sess)
	if err != nil {
		t.Fatalf("Eligibility: %v", err)
	}
	if el.Eligible || el.Shortfall != 260 {
		t.Fatalf("unexpected eligibility %+v", el)
	}
}

func TestPointsNeverNegativeAcrossSequence(t *testing.T) {
	st, sess := seeded(t, 980)
	e := New(st, st, &fakeGateway{accepted: true}, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = e.Redeem(ctx, sess, opts)
		if _, err := st.Increment(ctx, "u1", model.Delta{Points: 20, TotalEarned: 20}); err != nil {
			t.Fatalf("Increment: %v", err)
		}
		sess.ApplyDelta(20)
		acc, _, _ := st.GetAccount(ctx, "u1")
		if acc.Points < 0 || sess.CachedPoints() < 0 {
			t.Fatalf("negative balance at step %d: %d", i, acc.Points)
		}
	}
}

func TestRedeem_CallerCancelDoesNotRefundDispatchedWorkflow(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gw, err := provision.NewGitHubGateway(provision.GitHubConfig{Token: "tok", Owner: "acme", Repo: "vps", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGitHubGateway: %v", err)
	}
	st, sess := seeded(t, 1500)
	e := New(st, st, gw, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	res, err := e.Redeem(ctx, sess, opts)
	if err != nil {
		t.Fatalf("expected redemption to complete after cancel, got %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("expected one dispatch, got %d", received.Load())
	}
	acc, _, _ := st.GetAccount(context.Background(), "u1")
	if acc.Points != 500 || res.Balance != 500 || sess.CachedPoints() != 500 {
		t.Fatalf("expected debit to stand, got store=%d result=%d cache=%d", acc.Points, res.Balance, sess.CachedPoints())
	}
	list, _ := st.ListVPS(context.Background(), "u1")
	if len(list) != 1 {
		t.Fatalf("expected record for dispatched workflow, got %d", len(list))
	}
}

func TestRedeem_StoreRefusingDebitReportsShortfall(t *testing.T) {
	st, sess := seeded(t, 1500)
	// Another writer spent points the cache does not know about.
	if _, err := st.Increment(context.Background(), "u1", model.Delta{Points: -800}); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	gw := &fakeGateway{accepted: true}
	e := New(st, st, gw, Options{})

	_, err := e.Redeem(context.Background(), sess, opts)
	var insufficient *apperr.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("refused debit must not be a transport error")
	}
	if insufficient.Balance != 700 || insufficient.Shortfall != 300 {
		t.Fatalf("unexpected shortfall %+v", insufficient)
	}
	if sess.CachedPoints() != 700 {
		t.Fatalf("expected cache resynced to 700, got %d", sess.CachedPoints())
	}
	if len(gw.calls) != 0 {
		t.Fatalf("gateway must not be called")
	}
}
