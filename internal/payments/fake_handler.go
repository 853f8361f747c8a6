package payments

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// FakePaymentsHandler exposes a tiny demo page to settle fake payments.
// Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakePaymentsHandler struct {
	gateway    *FakeGateway
	reconciler *Reconciler
	logger     *logging.Logger
}

func NewFakePaymentsHandler(gateway *FakeGateway, reconciler *Reconciler, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{gateway: gateway, reconciler: reconciler, logger: logger}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/payments/{paymentID}", h.HandleCheckout)
	r.Post("/payments/{paymentID}/settle", h.HandleSettle)
	return r
}

func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	amount, description, ok := h.gateway.Amount(paymentID)
	if !ok {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	id := html.EscapeString(paymentID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Demo Pix payment</title>
  </head>
  <body>
    <h1>Demo Pix payment</h1>
    <p>%s</p>
    <p>Amount: R$ %.2f</p>
    <form method="post" action="%s/settle?status=approved"><button type="submit">Approve</button></form>
    <form method="post" action="%s/settle?status=rejected"><button type="submit">Reject</button></form>
  </body>
</html>`, html.EscapeString(description), float64(amount)/100, id, id)
}

type settleResponse struct {
	PaymentID     string  `json:"payment_id"`
	PaymentStatus string  `json:"payment_status"`
	Outcome       Outcome `json:"outcome"`
	BookingID     string  `json:"booking_id,omitempty"`
	BookingStatus string  `json:"booking_status,omitempty"`
}

// HandleSettle moves the fake payment to ?status= and reconciles it as the
// provider notification would.
func (h *FakePaymentsHandler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "approved"
	}
	pp, err := h.gateway.Settle(paymentID, status)
	if errors.Is(err, ErrPaymentNotFound) {
		respond.Error(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	res, err := h.reconciler.Reconcile(r.Context(), Event{
		EventID:           "demo:" + pp.ID + ":" + pp.RawStatus,
		ProviderPaymentID: pp.ID,
		Status:            pp.Status,
		CorrelationRef:    pp.CorrelationRef,
		Source:            SourceDemo,
	})
	if err != nil {
		h.logger.Error("demo payment reconcile failed", "payment_id", pp.ID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := settleResponse{PaymentID: pp.ID, PaymentStatus: string(pp.Status), Outcome: res.Outcome}
	if res.Booking != nil {
		out.BookingID = res.Booking.ID
		out.BookingStatus = string(res.Booking.Status)
	}
	respond.JSON(w, http.StatusOK, out)
}
