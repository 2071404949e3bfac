// Copyright 2026 The Pulse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
	"github.com/pulsehq/pulse/internal/config"
	"github.com/pulsehq/pulse/internal/events"
	"github.com/pulsehq/pulse/internal/identity"
	"github.com/pulsehq/pulse/internal/moderation"
	"github.com/pulsehq/pulse/internal/notification"
	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/observability/metrics"
	"github.com/pulsehq/pulse/internal/observability/tracing"
	"github.com/pulsehq/pulse/internal/question"
	"github.com/pulsehq/pulse/internal/session"
	"github.com/pulsehq/pulse/internal/store/postgres"
	"github.com/pulsehq/pulse/internal/team"
	"github.com/pulsehq/pulse/internal/tenant"
	transportHTTP "github.com/pulsehq/pulse/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting pulse q&a platform")

	// Phase: CLI Commands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter and domain instruments
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	instruments, err := meter.NewInstruments()
	if err != nil {
		slog.Error("failed to register instruments", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	tenantRepo := postgres.NewTenantRepository(db)
	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	teamRepo := postgres.NewTeamRepository(db)
	membershipRepo := postgres.NewMembershipRepository(db)
	questionRepo := postgres.NewQuestionRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize the audit trail first: every other service records into it.
	auditService := audit.NewService(auditRepo, cfg.Audit.QueueSize, instruments.AuditWriteFailures)
	auditService.SetWriteTimeout(cfg.Audit.WriteTimeout)

	// Initialize services
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	tenantService := tenant.NewService(tenantRepo)
	identityService := identity.NewService(userRepo, passwordHasher)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout)
	teamService := team.NewService(teamRepo, membershipRepo, auditService)
	checker := authz.NewChecker(teamService, instruments.PermissionDenials)

	notifier := events.NewNotifier(
		cfg.Events.SubscriberBuffer,
		cfg.Events.HeartbeatInterval,
		instruments.EventSubscribers,
	)
	dispatcher := notification.NewQueueDispatcher(cfg.Notification.QueueSize)
	moderator := moderation.NewHTTPModerator(
		cfg.Moderation.Endpoint,
		cfg.Moderation.APIKey,
		cfg.Moderation.Timeout,
	)

	questionService := question.NewService(
		questionRepo,
		teamService,
		moderator,
		checker,
		auditService,
		notifier,
		dispatcher,
		instruments.ModerationDecisions,
	)

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Configure SameSite mode
	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		tenantService,
		identityService,
		sessionService,
		teamService,
		questionService,
		auditService,
		notifier,
		checker,
		transportHTTP.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: sameSite,
			Lifetime:       cfg.Session.Lifetime,
		},
		transportHTTP.NewStreamTokenIssuer(cfg.Events.StreamTokenSecret, cfg.Events.StreamTokenTTL),
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the event notifier heartbeat; cancelling closes all streams.
	notifierCtx, stopNotifier := context.WithCancel(ctx)
	go notifier.Run(notifierCtx)

	// Drain the notification queue. Outbound delivery is an external concern;
	// this worker records what would be handed off.
	go func() {
		for n := range dispatcher.Queue() {
			slog.Info("notification ready for delivery",
				logger.Component("notification"),
				logger.String("kind", n.Kind),
				logger.TenantID(n.TenantID),
				logger.UserID(n.RecipientID),
			)
		}
	}()

	// Start session cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := sessionService.CleanupExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown: stop accepting requests, close event streams, then
	// drain the audit queue so deferred records land before exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	stopNotifier()
	auditService.Close()

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
