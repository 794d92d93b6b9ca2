package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/example/cart-scheduler/internal/application"
	"github.com/example/cart-scheduler/internal/auth"
	"github.com/example/cart-scheduler/internal/config"
	"github.com/example/cart-scheduler/internal/export"
	"github.com/example/cart-scheduler/internal/housekeeping"
	httptransport "github.com/example/cart-scheduler/internal/http"
	"github.com/example/cart-scheduler/internal/logging"
	"github.com/example/cart-scheduler/internal/persistence/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx, logger); err != nil {
		return err
	}

	app, err := buildApp(cfg, storage, time.Now, logger)
	if err != nil {
		return err
	}

	if _, err := app.users.EnsureBootstrapAdmin(ctx, application.BootstrapAdmin(cfg.BootstrapAdmin)); err != nil {
		return fmt.Errorf("bootstrap administrator: %w", err)
	}

	jobs, err := housekeeping.NewScheduler(app.purger, cfg.HousekeepingSchedule)
	if err != nil {
		return err
	}
	if err := jobs.Schedule("@every 10m", func() { app.limiter.Forget(30 * time.Minute) }); err != nil {
		return err
	}
	jobs.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := jobs.Stop(stopCtx); err != nil {
			logger.Error("failed to stop housekeeping", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("cart scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type wiring struct {
	handler http.Handler
	users   *application.UserService
	purger  *housekeeping.Purger
	limiter *httptransport.RateLimiter
}

func buildApp(cfg config.Config, storage *sqlite.Storage, now func() time.Time, logger *slog.Logger) (*wiring, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	idGenerator := uuid.NewString
	hasher := application.NewPasswordHasher(application.DefaultArgon2idParams)

	userRepo := newUserRepositoryAdapter(storage.Users)
	cartRepo := newCartRepositoryAdapter(storage.Carts)
	bookingRepo := newBookingRepositoryAdapter(storage.Bookings)
	meetingPointRepo := newMeetingPointRepositoryAdapter(storage.MeetingPoints)
	inviteRepo := newInviteRepositoryAdapter(storage.InviteTokens)
	refreshRepo := newRefreshTokenRepositoryAdapter(storage.RefreshTokens)
	eventRepo := newEventRepositoryAdapter(storage.Events)

	authService := application.NewAuthServiceWithLogger(userRepo, refreshRepo, tokens, hasher, idGenerator, uuid.NewString, now, cfg.RefreshTTL, logger)
	userService := application.NewUserServiceWithLogger(userRepo, inviteRepo, hasher, idGenerator, application.NewInviteToken, now, cfg.InviteTTL, logger)
	registrationService := application.NewRegistrationServiceWithLogger(inviteRepo, userRepo, hasher, now, logger)
	cartService := application.NewCartServiceWithLogger(cartRepo, idGenerator, now, logger)
	bookingService := application.NewBookingServiceWithLogger(bookingRepo, cartRepo, userRepo, idGenerator, now, logger)
	meetingPointService := application.NewMeetingPointServiceWithLogger(meetingPointRepo, userRepo, idGenerator, now, logger)
	statsService := application.NewStatsServiceWithLogger(meetingPointRepo, userRepo, logger)
	eventService := application.NewEventServiceWithLogger(eventRepo, idGenerator, now, logger)

	renderers := map[string]application.MonthRenderer{
		httptransport.FormatPDF: export.NewPDFRenderer(),
		httptransport.FormatICS: export.NewICSRenderer(location, export.DefaultMeetingDuration, calendarDomain(cfg.FrontendURL)),
	}
	limiter := httptransport.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Health:        httptransport.NewHealthHandler(storage, logger),
		Auth:          httptransport.NewAuthHandler(authService, userService, logger),
		Registration:  httptransport.NewRegistrationHandler(registrationService, logger),
		Users:         httptransport.NewUserHandler(userService, httptransport.InviteLinks{FrontendURL: cfg.FrontendURL, QRCode: export.QRCodeDataURI}, logger),
		Carts:         httptransport.NewCartHandler(cartService, bookingService, logger),
		Bookings:      httptransport.NewBookingHandler(bookingService, logger),
		MeetingPoints: httptransport.NewMeetingPointHandler(meetingPointService, statsService, renderers, now, logger),
		Events:        httptransport.NewEventHandler(eventService, logger),
		Authenticator: authService,
		LoginLimiter:  limiter,
		Logger:        logger,
	})

	corsPolicy := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})

	return &wiring{
		handler: corsPolicy.Handler(router),
		users:   userService,
		purger:  housekeeping.NewPurger(storage.RefreshTokens, storage.InviteTokens, now, logger),
		limiter: limiter,
	}, nil
}

// calendarDomain is the host part used in iCalendar UIDs.
func calendarDomain(frontendURL string) string {
	if parsed, err := url.Parse(frontendURL); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return "cart-scheduler"
}
