package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/booking"
	"telehealth-backend/internal/cache"
	"telehealth-backend/internal/config"
	"telehealth-backend/internal/db"
	"telehealth-backend/internal/locker"
	"telehealth-backend/internal/middleware"
	"telehealth-backend/internal/models"
	"telehealth-backend/internal/negotiation"
	"telehealth-backend/internal/notifications"
	"telehealth-backend/internal/payments"
	"telehealth-backend/internal/reviews"
	"telehealth-backend/internal/users"
	"telehealth-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected")
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var cacheStore cache.Cache = cache.NewNoop()
	var locks locker.Locker = locker.NewLocal()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))
		cacheStore = redisCache
		locks = locker.NewRedis(redisCache.Client())
	}

	var publisher notifications.Publisher
	if cfg.AMQPUrl != "" {
		conn, err := amqp.Dial(cfg.AMQPUrl)
		if err != nil {
			logger.Error("amqp connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer conn.Close()

		queuePublisher, err := notifications.NewQueuePublisher(conn)
		if err != nil {
			logger.Error("amqp queue setup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer queuePublisher.Close()
		logger.Info("amqp notification queue enabled")
		publisher = queuePublisher
	}

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	jwtManager := &auth.Manager{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
		Issuer:     "telehealth-backend",
	}

	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, payment calls will fail")
	}
	provider := payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	val := validation.New()
	notifier := notifications.NewStore(cols.Notifications, logger, publisher)

	usersRepo := users.NewRepository(cols.Users)
	usersService := users.NewService(usersRepo, jwtManager, cacheStore, logger)
	usersHandler := users.NewHandler(usersService, val, logger)

	negotiationRepo := negotiation.NewRepository(cols.Users)
	negotiationService := negotiation.NewService(negotiationRepo)
	negotiationHandler := negotiation.NewHandler(negotiationService, val, logger)

	bookingRepo := booking.NewRepository(cols.Users, cols.Appointments, cols.PaymentEvents)
	bookingService := booking.NewService(bookingRepo, provider, locks, notifier, logger, cfg.Timezone, cfg.VideoCallBaseURL)
	bookingHandler := booking.NewHandler(bookingService, val, logger)

	reviewsRepo := reviews.NewRepository(cols.Users, cols.Appointments, cols.Reviews)
	reviewsService := reviews.NewService(reviewsRepo, notifier, logger)
	reviewsHandler := reviews.NewHandler(reviewsService, val, logger)

	notificationsHandler := notifications.NewHandler(notifier, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.FrontendOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	bookingLimiter := middleware.NewRateLimiter(cfg.RateLimitBooking, time.Duration(cfg.RateLimitWindowSec)*time.Second)
	reviewsLimiter := middleware.NewRateLimiter(cfg.RateLimitReviews, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/register", usersHandler.Register)
		api.Post("/auth/login", usersHandler.Login)
		api.Post("/auth/refresh", usersHandler.Refresh)

		api.Get("/doctors", usersHandler.ListDoctors)
		api.Get("/doctors/{id}", usersHandler.GetDoctor)
		api.Get("/doctors/{id}/reviews", reviewsHandler.ListForDoctor)

		// Stripe calls this endpoint directly; signature is the auth.
		api.Post("/payments/webhook", bookingHandler.Webhook)

		api.Group(func(private chi.Router) {
			private.Use(middleware.Auth(jwtManager))

			private.Get("/me", usersHandler.Me)
			private.Get("/notifications", notificationsHandler.List)
			private.Patch("/notifications/{id}/read", notificationsHandler.MarkRead)

			private.Get("/appointments", bookingHandler.List)
			private.With(middleware.RequireRole(models.RolePatient)).Group(func(patient chi.Router) {
				patient.With(bookingLimiter.Middleware).Post("/payments/create-intent", bookingHandler.CreateIntent)
				patient.With(bookingLimiter.Middleware).Post("/payments/confirm", bookingHandler.Confirm)
				patient.Get("/payments/history", bookingHandler.History)
				patient.With(reviewsLimiter.Middleware).Post("/reviews", reviewsHandler.Create)
			})
			private.Patch("/appointments/{id}/cancel", bookingHandler.Cancel)
			private.Delete("/reviews/{id}", reviewsHandler.Delete)

			private.With(middleware.RequireRole(models.RoleDoctor)).Group(func(doctor chi.Router) {
				doctor.Get("/doctor/earning-negotiation", negotiationHandler.SelfGet)
				doctor.Post("/doctor/earning-negotiation", negotiationHandler.SelfUpdate)
				doctor.Put("/doctors/availability", usersHandler.UpdateAvailability)
				doctor.Patch("/appointments/{id}/accept", bookingHandler.Accept)
				doctor.Patch("/appointments/{id}/complete", bookingHandler.Complete)
			})

			private.With(middleware.RequireRole(models.RoleAdmin)).Route("/admin", func(admin chi.Router) {
				admin.Get("/doctors/earning-negotiation", negotiationHandler.AdminList)
				admin.Get("/doctors/{doctorId}/earning-negotiation", negotiationHandler.AdminGet)
				admin.Post("/doctors/{doctorId}/earning-negotiation", negotiationHandler.AdminUpdate)
				admin.Post("/doctors/{doctorId}/earning-negotiation/agree", negotiationHandler.AdminAgree)
				admin.Post("/payments/refund", bookingHandler.Refund)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}
