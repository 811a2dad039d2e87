package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/huyanhvn/threadcraft-backend/api/routes"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways/stripecheckout"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways/vnpay"
	"github.com/huyanhvn/threadcraft-backend/internal/inventory"
	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/internal/reconcile"
	"github.com/huyanhvn/threadcraft-backend/pkg/config"
	"github.com/huyanhvn/threadcraft-backend/pkg/db"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/metrics"
	"github.com/huyanhvn/threadcraft-backend/pkg/migrate"
	"github.com/huyanhvn/threadcraft-backend/pkg/redis"
	pkgstripe "github.com/huyanhvn/threadcraft-backend/pkg/stripe"
)

const stripeEventScope = "stripe-events"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ordersRepo := orders.NewRepository(dbClient.DB())
	notifsRepo := notifications.NewRepository(dbClient.DB())

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Mailer: notifications.NewLogMailer(logg),
		Repo:   notifsRepo,
		Logger: logg,
		Mail:   cfg.Mail,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Notifier: dispatcher,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	adjuster, err := inventory.NewAdjuster(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory adjuster", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Stock:    adjuster,
		Notifier: dispatcher,
		Metrics:  metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		DB:         dbClient,
		Redis:      redisClient,
		OrdersRepo: ordersRepo,
		OrdersSvc:  ordersSvc,
		NotifsRepo: notifsRepo,
		Reconciler: reconciler,
	}

	if cfg.VNPay.Enabled() {
		vnpayAdapter, err := vnpay.New(cfg.VNPay)
		if err != nil {
			logg.Error(context.Background(), "failed to create vnpay adapter", err)
			os.Exit(1)
		}
		deps.VNPay = vnpayAdapter
		deps.VNPayHook = vnpayAdapter
	} else {
		logg.Warn(context.Background(), "vnpay credentials not configured; gateway disabled")
	}

	if cfg.Stripe.Enabled() {
		stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe client", err)
			os.Exit(1)
		}
		stripeAdapter, err := stripecheckout.New(stripecheckout.AdapterParams{
			Sessions:      stripecheckout.NewSessionClient(stripeClient),
			SigningSecret: stripeClient.SigningSecret(),
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe checkout adapter", err)
			os.Exit(1)
		}
		guard, err := stripecheckout.NewEventGuard(redisClient, 24*time.Hour, stripeEventScope)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe event guard", err)
			os.Exit(1)
		}
		deps.Stripe = stripeAdapter
		deps.StripeHook = stripeAdapter
		deps.StripeGuard = guard
	} else {
		logg.Warn(context.Background(), "stripe credentials not configured; gateway disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
