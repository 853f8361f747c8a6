package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

const (
	webhookProvider = "mercadopago"
	maxWebhookBody  = 1 << 20
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookHandler receives Mercado Pago notifications. The notification body is
// only a pointer: the payment status is always re-read from the provider.
type WebhookHandler struct {
	secret     string
	gateway    Gateway
	reconciler *Reconciler
	processed  processedTracker
	timeout    time.Duration
	metrics    *metrics.PaymentMetrics
	logger     *logging.Logger
}

func NewWebhookHandler(secret string, gateway Gateway, reconciler *Reconciler, processed processedTracker, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:     strings.TrimSpace(secret),
		gateway:    gateway,
		reconciler: reconciler,
		processed:  processed,
		timeout:    DefaultStatusTimeout,
		logger:     logger,
	}
}

func (h *WebhookHandler) WithTimeout(d time.Duration) *WebhookHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *WebhookHandler) WithMetrics(m *metrics.PaymentMetrics) *WebhookHandler {
	h.metrics = m
	return h
}

type mpNotification struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Handle serves POST /webhooks/mercadopago. Only a bad signature is refused;
// everything else is acknowledged so the provider stops retrying.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.ack(w, "unreadable")
		return
	}

	var note mpNotification
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &note); err != nil {
			h.logger.Warn("mercadopago webhook decode failed", "error", err)
		}
	}
	paymentID := rawID(note.Data.ID)
	if paymentID == "" {
		paymentID = r.URL.Query().Get("data.id")
	}
	if paymentID == "" && note.Type == "" && note.Action == "" {
		paymentID = r.URL.Query().Get("id")
	}

	if h.secret != "" {
		if !verifyMercadoPagoSignature(h.secret, paymentID, r.Header.Get("x-request-id"), r.Header.Get("x-signature")) {
			h.metrics.ObserveWebhook("bad_signature")
			h.logger.Warn("mercadopago webhook signature rejected", "payment_id", paymentID)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	topic := note.Type
	if topic == "" {
		topic = r.URL.Query().Get("type")
	}
	if topic == "" {
		topic = r.URL.Query().Get("topic")
	}
	if topic != "" && topic != "payment" && !strings.HasPrefix(note.Action, "payment.") {
		h.ack(w, "ignored")
		return
	}
	if paymentID == "" {
		h.logger.Info("mercadopago webhook without payment id")
		h.ack(w, "ignored")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	pp, err := h.gateway.GetStatus(ctx, paymentID)
	cancel()
	if err != nil {
		h.logger.Warn("mercadopago webhook status fetch failed", "payment_id", paymentID, "error", err)
		h.ack(w, "fetch_failed")
		return
	}

	eventID := paymentID + ":" + strings.ToLower(pp.RawStatus)
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(r.Context(), webhookProvider, eventID)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err, "event_id", eventID)
		} else if seen {
			h.ack(w, "duplicate")
			return
		}
	}

	res, err := h.reconciler.Reconcile(r.Context(), Event{
		EventID:           eventID,
		ProviderPaymentID: paymentID,
		Status:            pp.Status,
		CorrelationRef:    pp.CorrelationRef,
		Source:            SourceWebhook,
	})
	if err != nil {
		h.logger.Error("mercadopago webhook reconcile failed", "payment_id", paymentID, "error", err)
		h.ack(w, "error")
		return
	}

	if h.processed != nil && pp.Status != scheduling.PaymentPending {
		if _, err := h.processed.MarkProcessed(r.Context(), webhookProvider, eventID); err != nil {
			h.logger.Error("failed to record processed event", "error", err, "event_id", eventID)
		}
	}
	h.ack(w, string(res.Outcome))
}

func (h *WebhookHandler) ack(w http.ResponseWriter, result string) {
	h.metrics.ObserveWebhook(result)
	w.WriteHeader(http.StatusOK)
}

// rawID accepts both numeric and string JSON ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// verifyMercadoPagoSignature checks the x-signature header ("ts=...,v1=...")
// against HMAC-SHA256 of the manifest id:<data.id>;request-id:<x-request-id>;ts:<ts>;
func verifyMercadoPagoSignature(secret, dataID, requestID, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	expected := signManifest(secret, dataID, requestID, ts)
	return hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected))
}

func signManifest(secret, dataID, requestID, ts string) string {
	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
