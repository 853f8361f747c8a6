package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

var gatewayTracer = otel.Tracer("barbershop.internal.payments")

// ErrPaymentNotFound is returned by gateways for unknown payment ids.
var ErrPaymentNotFound = errors.New("payments: payment not found")

// Payer identifies who pays. Email is required by the provider.
type Payer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// IntentParams describes a payment to create for a booking.
type IntentParams struct {
	AmountCents    int64
	Description    string
	Payer          Payer
	CorrelationRef string
	IdempotencyKey string
}

// Intent is the provider's answer to a payment creation.
type Intent struct {
	ID           string                   `json:"payment_id"`
	Status       scheduling.PaymentStatus `json:"status"`
	QRCode       string                   `json:"qr_code,omitempty"`
	QRCodeBase64 string                   `json:"qr_code_base64,omitempty"`
	TicketURL    string                   `json:"ticket_url,omitempty"`
}

// ProviderPayment is a payment as the provider currently reports it.
type ProviderPayment struct {
	ID             string
	Status         scheduling.PaymentStatus
	RawStatus      string
	CorrelationRef string
}

// Gateway creates payments and answers status queries.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetStatus(ctx context.Context, providerPaymentID string) (*ProviderPayment, error)
}

// NormalizeStatus maps Mercado Pago's status vocabulary onto PaymentStatus.
// Anything not final is pending.
func NormalizeStatus(raw string) scheduling.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return scheduling.PaymentApproved
	case "rejected":
		return scheduling.PaymentRejected
	case "cancelled", "canceled", "refunded", "charged_back":
		return scheduling.PaymentCancelled
	default:
		return scheduling.PaymentPending
	}
}

// minimum transaction amount accepted by Mercado Pago, in centavos.
const minAmountCents = 50

// MercadoPagoGateway talks to the Mercado Pago payments API and creates Pix charges.
type MercadoPagoGateway struct {
	accessToken     string
	baseURL         string
	notificationURL string
	httpClient      *http.Client
	metrics         *metrics.PaymentMetrics
	logger          *logging.Logger
}

func NewMercadoPagoGateway(accessToken string, logger *logging.Logger) *MercadoPagoGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &MercadoPagoGateway{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     "https://api.mercadopago.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// WithBaseURL overrides the API host (used by tests).
func (g *MercadoPagoGateway) WithBaseURL(baseURL string) *MercadoPagoGateway {
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		g.baseURL = trimmed
	}
	return g
}

// WithNotificationURL sets the webhook URL sent with every new payment.
func (g *MercadoPagoGateway) WithNotificationURL(url string) *MercadoPagoGateway {
	g.notificationURL = strings.TrimSpace(url)
	return g
}

func (g *MercadoPagoGateway) WithHTTPClient(client *http.Client) *MercadoPagoGateway {
	if client != nil {
		g.httpClient = client
	}
	return g
}

func (g *MercadoPagoGateway) WithMetrics(m *metrics.PaymentMetrics) *MercadoPagoGateway {
	g.metrics = m
	return g
}

type mpPayment struct {
	ID                 json.Number          `json:"id"`
	Status             string               `json:"status"`
	StatusDetail       string               `json:"status_detail"`
	ExternalReference  string               `json:"external_reference"`
	PointOfInteraction mpPointOfInteraction `json:"point_of_interaction"`
}

type mpPointOfInteraction struct {
	TransactionData struct {
		QRCode       string `json:"qr_code"`
		QRCodeBase64 string `json:"qr_code_base64"`
		TicketURL    string `json:"ticket_url"`
	} `json:"transaction_data"`
}

func (g *MercadoPagoGateway) CreatePaymentIntent(ctx context.Context, params IntentParams) (_ *Intent, err error) {
	if g.accessToken == "" {
		return nil, fmt.Errorf("payments: mercadopago access token not configured")
	}
	ctx, span := gatewayTracer.Start(ctx, "mercadopago.create_payment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", params.CorrelationRef),
		attribute.Int64("barbershop.amount_cents", params.AmountCents),
	)
	started := time.Now()
	defer func() { g.metrics.ObserveGateway("create", err, time.Since(started).Seconds()) }()

	amount := params.AmountCents
	if amount < minAmountCents {
		g.logger.Warn("raising payment to provider minimum", "booking_id", params.CorrelationRef,
			"amount_cents", params.AmountCents, "minimum_cents", minAmountCents)
		amount = minAmountCents
	}
	first, last := splitName(params.Payer.Name)
	body := map[string]any{
		"transaction_amount": float64(amount) / 100,
		"description":        params.Description,
		"payment_method_id":  "pix",
		"external_reference": params.CorrelationRef,
		"payer": map[string]any{
			"email":      params.Payer.Email,
			"first_name": first,
			"last_name":  last,
		},
	}
	if g.notificationURL != "" {
		body["notification_url"] = g.notificationURL
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: mercadopago payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: mercadopago request: %w", err)
	}
	idempotency := params.IdempotencyKey
	if idempotency == "" {
		idempotency = params.CorrelationRef
	}
	req.Header.Set("X-Idempotency-Key", idempotency)

	var parsed mpPayment
	if err := g.do(req, &parsed); err != nil {
		return nil, err
	}
	if parsed.ID.String() == "" {
		return nil, fmt.Errorf("payments: mercadopago response missing id")
	}
	tx := parsed.PointOfInteraction.TransactionData
	return &Intent{
		ID:           parsed.ID.String(),
		Status:       NormalizeStatus(parsed.Status),
		QRCode:       tx.QRCode,
		QRCodeBase64: tx.QRCodeBase64,
		TicketURL:    tx.TicketURL,
	}, nil
}

func (g *MercadoPagoGateway) GetStatus(ctx context.Context, providerPaymentID string) (_ *ProviderPayment, err error) {
	if g.accessToken == "" {
		return nil, fmt.Errorf("payments: mercadopago access token not configured")
	}
	if _, perr := strconv.ParseInt(providerPaymentID, 10, 64); perr != nil {
		return nil, ErrPaymentNotFound
	}
	ctx, span := gatewayTracer.Start(ctx, "mercadopago.get_payment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.payment_id", providerPaymentID))
	started := time.Now()
	defer func() { g.metrics.ObserveGateway("get", err, time.Since(started).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payments/"+providerPaymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: mercadopago request: %w", err)
	}
	var parsed mpPayment
	if err := g.do(req, &parsed); err != nil {
		return nil, err
	}
	return &ProviderPayment{
		ID:             parsed.ID.String(),
		Status:         NormalizeStatus(parsed.Status),
		RawStatus:      parsed.Status,
		CorrelationRef: parsed.ExternalReference,
	}, nil
}

func (g *MercadoPagoGateway) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: mercadopago http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPaymentNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payments: mercadopago api status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: mercadopago decode: %w", err)
	}
	return nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
