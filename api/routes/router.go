package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huyanhvn/threadcraft-backend/api/controllers"
	ordercontrollers "github.com/huyanhvn/threadcraft-backend/api/controllers/orders"
	paymentcontrollers "github.com/huyanhvn/threadcraft-backend/api/controllers/payments"
	webhookcontrollers "github.com/huyanhvn/threadcraft-backend/api/controllers/webhooks"
	"github.com/huyanhvn/threadcraft-backend/api/middleware"
	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/config"
	"github.com/huyanhvn/threadcraft-backend/pkg/db"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/redis"
)

// Deps carries the wired services the router hands to controllers. Gateway
// fields stay nil when the matching credentials are not configured.
type Deps struct {
	DB          db.Pinger
	Redis       *redis.Client
	OrdersRepo  orders.Repository
	OrdersSvc   orders.Service
	NotifsRepo  notifications.Repository
	VNPay       paymentcontrollers.VNPayRedirector
	VNPayHook   webhookcontrollers.VNPayVerifier
	Stripe      paymentcontrollers.StripeSessionCreator
	StripeHook  webhookcontrollers.StripeEventVerifier
	StripeGuard webhookcontrollers.StripeGuard
	Reconciler  webhookcontrollers.Reconciler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	// Gateway callbacks carry their own authentication: the VNPAY query is
	// HMAC-signed and the Stripe payload is signature-checked.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/vnpay/ipn", webhookcontrollers.VNPayIPN(deps.VNPayHook, deps.Reconciler, logg))
		r.Get("/vnpay/return", webhookcontrollers.VNPayReturn(deps.VNPayHook, deps.Reconciler, logg))
		r.Post("/stripe", webhookcontrollers.Stripe(deps.StripeHook, deps.StripeGuard, deps.Reconciler, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.OrdersSvc, logg))
			r.Get("/", ordercontrollers.ListMine(deps.OrdersRepo, logg))
			r.Get("/{orderNumber}", ordercontrollers.Detail(deps.OrdersRepo, logg))
			r.Post("/{orderNumber}/cancel", ordercontrollers.CustomerCancel(deps.OrdersSvc, logg))
			r.Post("/{orderNumber}/confirm-receipt", ordercontrollers.ConfirmReceipt(deps.OrdersSvc, logg))
			r.Post("/{orderNumber}/design", ordercontrollers.AttachDesign(deps.OrdersSvc, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", paymentcontrollers.Initiate(deps.OrdersRepo, deps.VNPay, deps.Stripe, logg))
			r.Get("/{orderNumber}/status", paymentcontrollers.Status(deps.OrdersRepo, logg))
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))
			r.Get("/orders", ordercontrollers.StaffList(deps.OrdersRepo, logg))
			r.Get("/orders/{orderNumber}/notifications", ordercontrollers.NotificationHistory(deps.NotifsRepo, logg))
			r.Post("/orders/{orderNumber}/advance", ordercontrollers.Advance(deps.OrdersSvc, logg))
			r.Post("/orders/{orderNumber}/cancel", ordercontrollers.StaffCancel(deps.OrdersSvc, logg))
		})
	})

	return r
}
