package payments

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// FakeGateway keeps payments in memory. It backs local demos when no
// Mercado Pago credentials are configured; Settle plays the provider's part.
type FakeGateway struct {
	mu       sync.Mutex
	seq      int64
	payments map[string]*fakePayment
	byKey    map[string]string
}

type fakePayment struct {
	ProviderPayment
	AmountCents int64
	Description string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		payments: make(map[string]*fakePayment),
		byKey:    make(map[string]string),
	}
}

func (g *FakeGateway) CreatePaymentIntent(_ context.Context, params IntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		p := g.payments[id]
		return g.intentFor(p), nil
	}
	g.seq++
	id := strconv.FormatInt(1000000+g.seq, 10)
	p := &fakePayment{
		ProviderPayment: ProviderPayment{
			ID:             id,
			Status:         scheduling.PaymentPending,
			RawStatus:      "pending",
			CorrelationRef: params.CorrelationRef,
		},
		AmountCents: params.AmountCents,
		Description: params.Description,
	}
	g.payments[id] = p
	if params.IdempotencyKey != "" {
		g.byKey[params.IdempotencyKey] = id
	}
	return g.intentFor(p), nil
}

func (g *FakeGateway) intentFor(p *fakePayment) *Intent {
	return &Intent{
		ID:        p.ID,
		Status:    p.Status,
		QRCode:    "00020126fake" + p.ID,
		TicketURL: "/demo/payments/" + p.ID,
	}
}

func (g *FakeGateway) GetStatus(_ context.Context, providerPaymentID string) (*ProviderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[providerPaymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	out := p.ProviderPayment
	return &out, nil
}

// Settle moves a fake payment to the given provider status.
func (g *FakeGateway) Settle(providerPaymentID, rawStatus string) (*ProviderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[providerPaymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p.RawStatus = strings.ToLower(strings.TrimSpace(rawStatus))
	p.Status = NormalizeStatus(p.RawStatus)
	out := p.ProviderPayment
	return &out, nil
}

// Amount reports the amount of a fake payment.
func (g *FakeGateway) Amount(providerPaymentID string) (int64, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[providerPaymentID]
	if !ok {
		return 0, "", false
	}
	return p.AmountCents, p.Description, true
}
