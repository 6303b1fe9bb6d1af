package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mercaline/marketplace-backend/api/controllers"
	webhookcontrollers "github.com/mercaline/marketplace-backend/api/controllers/webhooks"
	"github.com/mercaline/marketplace-backend/api/middleware"
	checkoutsvc "github.com/mercaline/marketplace-backend/internal/checkout"
	"github.com/mercaline/marketplace-backend/internal/ledger"
	"github.com/mercaline/marketplace-backend/internal/orders"
	stripewebhook "github.com/mercaline/marketplace-backend/internal/webhooks/stripe"
	"github.com/mercaline/marketplace-backend/pkg/config"
	"github.com/mercaline/marketplace-backend/pkg/db"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/redis"
	"github.com/mercaline/marketplace-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	ledgerService ledger.Service,
	refundService controllers.RefundService,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.OrderDetail(ordersService, ledgerService, logg))
			r.Post("/cancellations", controllers.CancelOrderItem(refundService, logg))
		})
	})

	return r
}
