package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/audit"
	"rez-ledger/internal/auth"
	"rez-ledger/internal/breaker"
	"rez-ledger/internal/ledger"
	"rez-ledger/internal/reconcile"
	"rez-ledger/internal/reporting"
	"rez-ledger/internal/wallet"
	"rez-ledger/internal/webhook"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Ledger   *ledger.Service
	Wallets  *wallet.Service
	Webhooks *webhook.Service
	Sweeper  *reconcile.Sweeper
	Drifts   reconcile.DriftStore
	Alerts   *alerting.Bridge
	Reports  *reporting.Service
	Audit    *audit.Service
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become an
// opaque 500; internals never leak to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, wallet.ErrInvalidArgument),
		errors.Is(err, webhook.ErrInvalidPayload):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrVelocityLimited):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, webhook.ErrInvalidSignature), errors.Is(err, webhook.ErrReplayDetected):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrNotFound),
		errors.Is(err, webhook.ErrNotFound),
		errors.Is(err, webhook.ErrUnknownProvider):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, breaker.ErrOpen):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Auth ---

type loginRequest struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

// Login issues a JWT for internal callers.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SubjectID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "subject_id, role required"})
		return
	}
	token, err := h.Auth.Issue(time.Now(), req.SubjectID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// --- Ledger ---

// AppendEntry posts one coin movement on behalf of an internal surface
// (order completion, achievement unlock, game reward, ...).
func (h Handlers) AppendEntry(c *gin.Context) {
	var req ledger.AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Ledger.Append(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h Handlers) ListEntries(c *gin.Context) {
	userID := c.Param("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.Ledger.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "entries": entries})
}

// --- Wallet ---

func (h Handlers) GetBalance(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	snap, err := h.Wallets.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// --- Webhooks ---

const maxWebhookBody = 1 << 20

// HandleWebhook receives a payment-provider callback. A 200 means the event
// reached a success or duplicate outcome synchronously; a 202 means it is
// durably recorded and the outcome is queryable later.
func (h Handlers) HandleWebhook(c *gin.Context) {
	provider := c.Param("provider")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	event, err := h.Webhooks.Handle(c.Request.Context(), provider, c.GetHeader("X-Signature"), body, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusAccepted
	if event.Status == webhook.StatusSuccess || event.Status == webhook.StatusDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"event_id": event.EventID,
		"status":   event.Status,
	})
}

// --- Admin ---

// RunReconcile triggers a sweep synchronously. With a user_id query
// parameter only that user is reconciled and the drift record (null when
// the projection agrees) is returned; otherwise the full-sweep summary.
func (h Handlers) RunReconcile(c *gin.Context) {
	if userID := c.Query("user_id"); userID != "" {
		rec, err := h.Sweeper.SweepUser(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		h.auditLog(c, func(ctx *gin.Context, actor, role string) error {
			return h.Audit.LogReconcileRun(ctx.Request.Context(), actor, role, ctx.ClientIP(), userID)
		})
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "drift": rec})
		return
	}

	sum, err := h.Sweeper.SweepAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditLog(c, func(ctx *gin.Context, actor, role string) error {
		return h.Audit.LogReconcileRun(ctx.Request.Context(), actor, role, ctx.ClientIP(), "")
	})
	c.JSON(http.StatusOK, sum)
}

// auditLog writes a best-effort audit record; a failed write never fails the
// request.
func (h Handlers) auditLog(c *gin.Context, fn func(c *gin.Context, actor, role string) error) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.SubjectID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	_ = fn(c, actor, role)
}

func (h Handlers) ListDrifts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.Drifts.ListRecent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type correctionRequest struct {
	UserID    string `json:"user_id"`
	Direction string `json:"direction"`
	Amount    int64  `json:"amount"`
	Bucket    string `json:"bucket,omitempty"`
	Reason    string `json:"reason"`
}

// AdminCorrection posts a manual correction entry. Corrections are ordinary
// ledger entries: the reason and acting admin land in entry metadata, never
// in a side channel.
func (h Handlers) AdminCorrection(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Reason == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}
	actor, err := auth.SubjectID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	res, err := h.Ledger.Append(c.Request.Context(), ledger.AppendRequest{
		UserID:    req.UserID,
		Direction: ledger.Direction(req.Direction),
		Amount:    req.Amount,
		Bucket:    req.Bucket,
		Source:    ledger.SourceAdminCorrection,
		Metadata:  correctionMetadata(actor, req.Reason),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditLog(c, func(ctx *gin.Context, actor, role string) error {
		return h.Audit.LogCorrection(ctx.Request.Context(), actor, role, ctx.ClientIP(),
			req.UserID, res.Entry.ID, res.Entry.Metadata)
	})
	c.JSON(http.StatusCreated, res)
}

func correctionMetadata(actor, reason string) string {
	meta, _ := json.Marshal(map[string]string{"actor": actor, "reason": reason})
	return string(meta)
}

func (h Handlers) ListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.Alerts.RecentEvents()})
}

func (h Handlers) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if !h.Alerts.Resolve(id) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	h.auditLog(c, func(ctx *gin.Context, actor, role string) error {
		return h.Audit.LogAlertResolved(ctx.Request.Context(), actor, role, ctx.ClientIP(), id)
	})
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// --- Reports ---

func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func (h Handlers) FlowReport(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	sum, err := h.Reports.FlowSummary(c.Request.Context(), reporting.FlowSummaryRequest{
		Range:  rng,
		UserID: c.Query("user_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) IntakeReport(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	sum, err := h.Reports.IntakeSummary(c.Request.Context(), reporting.IntakeSummaryRequest{
		Range:    rng,
		Provider: c.Query("provider"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
