package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/barbershop-scheduler/internal/config"
	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/payments"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// BuildGateway wires the Mercado Pago gateway when an access token is set and
// falls back to the in-process fake when fake payments are allowed. The fake
// is also returned so the demo checkout can settle payments.
func BuildGateway(cfg *appconfig.Config, m *metrics.PaymentMetrics, logger *logging.Logger) (payments.Gateway, *payments.FakeGateway, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.MercadoPagoAccessToken != "" {
		gw := payments.NewMercadoPagoGateway(cfg.MercadoPagoAccessToken, logger).
			WithNotificationURL(cfg.NotificationURL()).
			WithMetrics(m)
		if cfg.MercadoPagoBaseURL != "" {
			gw = gw.WithBaseURL(cfg.MercadoPagoBaseURL)
		}
		logger.Info("payments via mercado pago", "notification_url", cfg.NotificationURL())
		return gw, nil, nil
	}
	if cfg.AllowFakePayments {
		logger.Warn("payments via fake gateway; do not use in production")
		fake := payments.NewFakeGateway()
		return fake, fake, nil
	}
	return nil, nil, fmt.Errorf("bootstrap: no payment gateway configured")
}
