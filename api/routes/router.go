package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pharmacy-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/pharmacy-backend/api/controllers/orders"
	"github.com/angelmondragon/pharmacy-backend/api/middleware"
	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/fulfillment"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/internal/notifications"
	"github.com/angelmondragon/pharmacy-backend/internal/orders"
	"github.com/angelmondragon/pharmacy-backend/internal/prescriptions"
	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	fulfillmentService fulfillment.Service,
	prescriptionsService prescriptions.Service,
	ordersService orders.Service,
	inventoryService *inventory.Service,
	catalogService catalog.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	// a nil *redis.Client must not reach the middleware as a non-nil interface
	var (
		redisPinger db.Pinger
		idemStore   redis.IdempotencyStore
		limiter     *redis.Client
	)
	if redisClient != nil {
		redisPinger = redisClient
		idemStore = redisClient
		limiter = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Staff(logg))
		if limiter != nil {
			r.Use(middleware.StaffRateLimit(cfg.RateLimit.StaffRequests, cfg.RateLimit.Window, limiter, logg))
		}
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/prescriptions/{prescriptionId}", func(r chi.Router) {
			r.Post("/fulfill", controllers.FulfillPrescription(fulfillmentService, logg))
			r.Post("/reject", controllers.RejectPrescription(prescriptionsService, logg))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Post("/{orderId}/transition", ordercontrollers.Transition(ordersService, logg))
		})
		r.Route("/medications", func(r chi.Router) {
			r.Get("/low-stock", controllers.LowStockMedications(catalogService, logg))
			r.Post("/{medicationId}/restock", controllers.RestockMedication(inventoryService, logg))
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
