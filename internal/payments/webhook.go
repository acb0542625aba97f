package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const SignatureHeader = "X-Signature"

// Ledger records a payment against a project.
type Ledger interface {
	RecordPayment(ctx context.Context, ev domain.PaymentEvent) (decimal.Decimal, bool, error)
}

// Claimer deduplicates deliveries before they reach the ledger.
type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type WebhookHandler struct {
	secret []byte
	ledger Ledger
	claims Claimer
}

func NewWebhookHandler(secret string, ledger Ledger, claims Claimer) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), ledger: ledger, claims: claims}
}

// Sign returns the hex HMAC-SHA256 the gateway puts in X-Signature.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(body []byte, sig string) bool {
	if len(h.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(h.secret, body))
	return hmac.Equal(got, want)
}

// Handle processes POST /payments/webhook.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "cannot read body"})
		return
	}
	if !h.verify(body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "bad signature"})
		return
	}

	var ev domain.PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.EventID == "" || ev.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid event"})
		return
	}
	if !ev.Amount.IsPositive() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"ok": false, "error": "amount must be positive", "field": "amount"})
		return
	}

	ctx := c.Request.Context()
	first, err := h.claims.Claim(ctx, ev.EventID)
	if err != nil {
		logger.Zlog.Error("claim payment event", zap.String("event_id", ev.EventID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "try again"})
		return
	}
	if !first {
		c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
		return
	}

	paid, applied, err := h.ledger.RecordPayment(ctx, ev)
	if err != nil {
		if rerr := h.claims.Release(ctx, ev.EventID); rerr != nil {
			logger.Zlog.Warn("release payment event", zap.String("event_id", ev.EventID), zap.Error(rerr))
		}
		h.writeError(c, ev, err)
		return
	}

	logger.Zlog.Info("payment recorded",
		zap.String("event_id", ev.EventID),
		zap.String("project_id", ev.ProjectID),
		zap.String("amount", ev.Amount.String()),
		zap.Bool("applied", applied),
	)
	c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": !applied, "paid_amount": paid})
}

func (h *WebhookHandler) writeError(c *gin.Context, ev domain.PaymentEvent, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"ok": false, "error": verr.Message, "field": verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
	default:
		logger.Zlog.Error("record payment", zap.String("event_id", ev.EventID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	}
}

func (h *WebhookHandler) Register(r gin.IRouter) {
	r.POST("/payments/webhook", h.Handle)
}
