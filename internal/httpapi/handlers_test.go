package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/audit"
	"rez-ledger/internal/auth"
	"rez-ledger/internal/ledger"
	"rez-ledger/internal/reconcile"
	"rez-ledger/internal/retry"
	"rez-ledger/internal/wallet"
	"rez-ledger/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	router   *gin.Engine
	handlers Handlers
	entries  *ledger.MemoryStore
	wallets  *wallet.Service
	audits   *audit.MemoryRepo
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		entries: ledger.NewMemoryStore(),
		audits:  audit.NewMemoryRepo(),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	log := testLogger()
	f.wallets = wallet.NewService(wallet.NewMemoryStore(), nil, log)
	posts := ledger.NewService(f.entries, f.wallets, nil, nil, log)
	drifts := reconcile.NewMemoryDriftStore()
	alerts := alerting.NewBridge(alerting.DefaultRules(100_000), alerting.NewMemoryCoalescer(10*time.Minute), log)

	webhooks := webhook.NewService(webhook.Config{
		Secrets:      map[string]string{"razorpay": "rzp-secret"},
		ReplayWindow: 5 * time.Minute,
		MaxAttempts:  3,
		Backoff:      retry.Policy{BaseDelay: time.Second},
	}, webhook.NewMemoryStore(), posts, alerts, log)

	f.handlers = Handlers{
		Ledger:   posts,
		Wallets:  f.wallets,
		Webhooks: webhooks,
		Sweeper:  reconcile.NewSweeper(f.entries, f.wallets, drifts, alerts, log),
		Drifts:   drifts,
		Alerts:   alerts,
		Audit:    audit.NewService(f.audits),
	}

	r := gin.New()
	// Tests exercise handler behavior, not token verification: a stub
	// middleware plants the admin identity the handlers read.
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "admin-1", auth.RoleAdmin))
		c.Next()
	})
	r.POST("/webhooks/:provider", f.handlers.HandleWebhook)
	r.POST("/v1/ledger/entries", f.handlers.AppendEntry)
	r.GET("/v1/ledger/entries/:user_id", f.handlers.ListEntries)
	r.GET("/v1/wallets/:user_id/balance", f.handlers.GetBalance)
	r.POST("/v1/admin/reconcile", f.handlers.RunReconcile)
	r.POST("/v1/admin/corrections", f.handlers.AdminCorrection)
	r.GET("/v1/admin/drifts", f.handlers.ListDrifts)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAppendEntry_CreatesAndReplays(t *testing.T) {
	f := newFixture(t)

	req := map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 500,
		"source": "achievement", "idempotency_key": "ach-1",
	}
	w := f.do(t, http.MethodPost, "/v1/ledger/entries", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/v1/ledger/entries", req)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status=%d want 200", w.Code)
	}
	res := decode[ledger.AppendResult](t, w)
	if !res.Duplicate {
		t.Fatalf("expected duplicate flag")
	}
}

func TestAppendEntry_ErrorMapping(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": -1, "source": "order",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid amount: status=%d want 400", w.Code)
	}

	w = f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 100, "source": "order",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("credit: status=%d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
		"user_id": "u1", "direction": "debit", "amount": 500, "source": "order",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraft: status=%d want 422", w.Code)
	}
}

func TestGetBalance(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/v1/wallets/u1/balance", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing wallet: status=%d want 404", w.Code)
	}

	f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 250, "source": "order",
	})
	w := f.do(t, http.MethodGet, "/v1/wallets/u1/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	snap := decode[wallet.Snapshot](t, w)
	if snap.Available != 250 {
		t.Fatalf("available=%d want 250", snap.Available)
	}
}

func TestListEntries(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
			"user_id": "u1", "direction": "credit", "amount": 10 + i, "source": "order",
		})
	}

	w := f.do(t, http.MethodGet, "/v1/ledger/entries/u1?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var out struct {
		Entries []ledger.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("entries=%d want 2", len(out.Entries))
	}
}

func TestHandleWebhook_StatusMapping(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event_id":"evt-1","user_id":"u1","amount":100}`)
	header := webhook.SignBody("rzp-secret", body, time.Now())

	// Processed synchronously to success: acked with 200.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Signature", header)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var ack struct {
		EventID string `json:"event_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Status != string(webhook.StatusSuccess) {
		t.Fatalf("ack status=%q want success", ack.Status)
	}

	// Redelivery: terminal duplicate, also 200.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Signature", webhook.SignBody("rzp-secret", body, time.Now()))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery: status=%d want 200", w.Code)
	}

	// Wrong signature.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Signature", webhook.SignBody("wrong", body, time.Now()))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status=%d want 401", w.Code)
	}

	// Unknown provider.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/paytm", bytes.NewReader(body))
	req.Header.Set("X-Signature", header)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown provider: status=%d want 404", w.Code)
	}
}

func TestAdminCorrection(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/admin/corrections", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 100,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing reason: status=%d want 400", w.Code)
	}

	w = f.do(t, http.MethodPost, "/v1/admin/corrections", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 100, "reason": "support ticket 4521",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[ledger.AppendResult](t, w)
	if res.Entry.Source != ledger.SourceAdminCorrection {
		t.Fatalf("source=%q", res.Entry.Source)
	}

	evs := f.audits.Events()
	if len(evs) != 1 {
		t.Fatalf("audit events=%d want 1", len(evs))
	}
	if evs[0].ActorID != "admin-1" || evs[0].TargetUserID != "u1" {
		t.Fatalf("audit event %+v", evs[0])
	}
}

func TestRunReconcile_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
		"user_id": "u1", "direction": "credit", "amount": 500, "source": "order",
	})
	// Divergence: a ledger row the projection never saw.
	if _, _, err := f.entries.Insert(ctx, ledger.Entry{
		ID: "drift-1", UserID: "u1", Direction: ledger.DirectionCredit,
		Amount: 200, Bucket: wallet.BucketPrimary, Source: ledger.SourceOrder,
		CreatedAt: f.now,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	w := f.do(t, http.MethodPost, "/v1/admin/reconcile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	sum := decode[reconcile.Summary](t, w)
	if sum.Drifts != 1 || sum.Repaired != 1 {
		t.Fatalf("summary %+v", sum)
	}

	w = f.do(t, http.MethodGet, "/v1/wallets/u1/balance", nil)
	snap := decode[wallet.Snapshot](t, w)
	if snap.Available != 700 {
		t.Fatalf("available=%d want 700", snap.Available)
	}

	w = f.do(t, http.MethodGet, "/v1/admin/drifts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("drifts: status=%d", w.Code)
	}
	var out struct {
		Records []reconcile.DriftRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("records=%d want 1", len(out.Records))
	}
}

func TestRunReconcile_SingleUserScope(t *testing.T) {
	f := newFixture(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	for _, userID := range []string{"u1", "u2"} {
		f.do(t, http.MethodPost, "/v1/ledger/entries", map[string]any{
			"user_id": userID, "direction": "credit", "amount": 500, "source": "order",
		})
		if _, _, err := f.entries.Insert(ctx, ledger.Entry{
			ID: "drift-" + userID, UserID: userID, Direction: ledger.DirectionCredit,
			Amount: 200, Bucket: wallet.BucketPrimary, Source: ledger.SourceOrder,
			CreatedAt: f.now,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	w := f.do(t, http.MethodPost, "/v1/admin/reconcile?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		UserID string                 `json:"user_id"`
		Drift  *reconcile.DriftRecord `json:"drift"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Drift == nil || out.Drift.UserID != "u1" || !out.Drift.Repaired {
		t.Fatalf("drift %+v", out.Drift)
	}

	// Only u1 was reconciled.
	w = f.do(t, http.MethodGet, "/v1/wallets/u1/balance", nil)
	if snap := decode[wallet.Snapshot](t, w); snap.Available != 700 {
		t.Fatalf("u1 available=%d want 700", snap.Available)
	}
	w = f.do(t, http.MethodGet, "/v1/wallets/u2/balance", nil)
	if snap := decode[wallet.Snapshot](t, w); snap.Available != 500 {
		t.Fatalf("u2 available=%d want 500, scoped run must not touch it", snap.Available)
	}

	// A converged user reports no drift.
	w = f.do(t, http.MethodPost, "/v1/admin/reconcile?user_id=u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second run: status=%d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Drift != nil {
		t.Fatalf("expected no drift on converged user, got %+v", out.Drift)
	}

	evs := f.audits.Events()
	if len(evs) != 2 {
		t.Fatalf("audit events=%d want 2", len(evs))
	}
	if evs[0].TargetUserID != "u1" {
		t.Fatalf("audit target=%q want u1", evs[0].TargetUserID)
	}
}
