package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricetracker/internal/alerts"
	"pricetracker/internal/config"
	createAlert "pricetracker/internal/http-server/handlers/alerts/create"
	"pricetracker/internal/http-server/handlers/alerts/unsubscribe"
	addProduct "pricetracker/internal/http-server/handlers/products/add"
	deleteProduct "pricetracker/internal/http-server/handlers/products/delete"
	getProducts "pricetracker/internal/http-server/handlers/products/get"
	getByID "pricetracker/internal/http-server/handlers/products/get_by_id"
	refreshProduct "pricetracker/internal/http-server/handlers/products/refresh"
	"pricetracker/internal/http-server/handlers/scrape"
	sweepStatus "pricetracker/internal/http-server/handlers/sweep/status"
	sweepTrigger "pricetracker/internal/http-server/handlers/sweep/trigger"
	"pricetracker/internal/lib/jwt"
	sl "pricetracker/internal/lib/logger"
	"pricetracker/internal/middleware/auth"
	"pricetracker/internal/middleware/products"
	"pricetracker/internal/notifier"
	"pricetracker/internal/rabbitmq"
	"pricetracker/internal/scheduler"
	"pricetracker/internal/scraper"
	"pricetracker/internal/storage/postgres"
	"pricetracker/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting price tracker", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	jwtParser := jwt.New(cfg.JWTSecret)

	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Db, cfg.Redis.DefaultTTL)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	postgresClient, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer postgresClient.Close()

	var sender alerts.MailSender

	switch cfg.Mail.Mode {
	case "queue":
		rabbitMQClient, err := rabbitmq.New(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("failed to connect rabbitMQ", sl.Err(err))
			os.Exit(1)
		}
		defer rabbitMQClient.Close()

		if err := rabbitMQClient.DeclareQueue(cfg.RabbitMQ.QueueName); err != nil {
			log.Error("failed to declare mail queue", sl.Err(err))
			os.Exit(1)
		}

		sender = notifier.NewQueue(rabbitmq.NewProducer(rabbitMQClient.Channel, cfg.RabbitMQ.QueueName))

	case "smtp":
		sender = notifier.NewSMTP(
			cfg.Mail.SMTP.Host,
			cfg.Mail.SMTP.Port,
			cfg.Mail.SMTP.Username,
			cfg.Mail.SMTP.Password,
			cfg.Mail.SMTP.From,
		)

	default:
		sender = notifier.NewLog(log)
	}

	dispatcher := alerts.NewDispatcher(sender, cfg.BaseURL)
	evaluator := alerts.NewEvaluator(log, postgresClient, dispatcher)
	alertManager := alerts.NewManager(log, postgresClient, postgresClient, dispatcher)

	scraperClient := scraper.New(log, cfg.Scraper.Timeout)

	prodOp := products.New(log, postgresClient, redisClient, scraperClient, evaluator)

	sched := scheduler.New(
		log,
		postgresClient,
		prodOp,
		cfg.Sweep.Interval,
		cfg.Sweep.WorkerPoolSize,
		cfg.Sweep.OriginRPS,
		cfg.Sweep.OriginBurst,
	)
	go sched.Run(ctx)

	router := setupRouter(
		log,
		validator.New(),
		prodOp,
		alertManager,
		scraperClient,
		sched,
		jwtParser,
	)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("server listening", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop server", sl.Err(err))
	}

	log.Info("server stopped")
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	prodOp *products.ProductOperator,
	alertManager *alerts.Manager,
	scraperClient *scraper.Scraper,
	sched *scheduler.Scheduler,
	jwtParser *jwt.JWTParser,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(auth.Optional(jwtParser))

	r.Post("/product", addProduct.New(log, prodOp, validate))
	r.Get("/products", getProducts.New(log, prodOp))
	r.Get("/product", getByID.New(log, prodOp))
	r.Delete("/product", deleteProduct.New(log, prodOp))
	r.Post("/product/refresh", refreshProduct.New(log, prodOp))

	r.Post("/scrape", scrape.New(log, scraperClient, validate))

	r.Post("/alert", createAlert.New(log, alertManager, validate))
	r.Get("/unsubscribe/{token}", unsubscribe.New(log, alertManager))

	r.Get("/sweep/status", sweepStatus.New(log, sched))
	r.Post("/sweep/trigger", sweepTrigger.New(log, sched))

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
