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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
	"github.com/pulsehq/pulse/internal/events"
	"github.com/pulsehq/pulse/internal/identity"
	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/question"
	"github.com/pulsehq/pulse/internal/session"
	"github.com/pulsehq/pulse/internal/team"
	"github.com/pulsehq/pulse/internal/tenant"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService   *tenant.Service
	identityService *identity.Service
	sessionService  *session.Service
	teamService     *team.Service
	questionService *question.Service
	auditService    *audit.Service
	notifier        *events.Notifier
	checker         *authz.Checker
	sessionConfig   SessionConfig
	streamTokens    *StreamTokenIssuer
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	Lifetime       time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	identityService *identity.Service,
	sessionService *session.Service,
	teamService *team.Service,
	questionService *question.Service,
	auditService *audit.Service,
	notifier *events.Notifier,
	checker *authz.Checker,
	sessionConfig SessionConfig,
	streamTokens *StreamTokenIssuer,
) *Handler {
	return &Handler{
		tenantService:   tenantService,
		identityService: identityService,
		sessionService:  sessionService,
		teamService:     teamService,
		questionService: questionService,
		auditService:    auditService,
		notifier:        notifier,
		checker:         checker,
		sessionConfig:   sessionConfig,
		streamTokens:    streamTokens,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Tenant provisioning happens before any tenant context exists.
		r.Post("/signup", h.Signup)

		// Everything else is tenant-scoped through the URL. The resolver
		// binds tenant context; unknown or deactivated tenants 404 here
		// and nothing below ever runs without a bound tenant.
		r.Route("/t/{tenantSlug}", func(r chi.Router) {
			r.Use(h.TenantResolver)

			r.Post("/auth/login", h.Login)

			// Public surface: submission and reading are open to
			// unauthenticated visitors, authenticated when a session exists.
			r.Group(func(r chi.Router) {
				r.Use(h.OptionalAuthMiddleware)
				r.Post("/questions", h.SubmitQuestion)
				r.Get("/questions", h.ListQuestions)
				r.Get("/questions/{questionID}", h.GetQuestion)
			})

			// Event stream authenticates with a short-lived token in the
			// query string because EventSource cannot set headers.
			r.Get("/events/stream", h.EventStream)

			// Authenticated surface.
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)

				r.Post("/auth/logout", h.Logout)
				r.Get("/auth/me", h.GetCurrentUser)

				r.Post("/questions/{questionID}/answer", h.AnswerQuestion)
				r.Post("/questions/{questionID}/upvote", h.UpvoteQuestion)
				r.Post("/questions/{questionID}/pin", h.PinQuestion)
				r.Post("/questions/{questionID}/unpin", h.UnpinQuestion)
				r.Post("/questions/{questionID}/freeze", h.FreezeQuestion)
				r.Post("/questions/{questionID}/unfreeze", h.UnfreezeQuestion)

				r.Get("/moderation/queue", h.ModerationQueue)
				r.Post("/moderation/{questionID}/approve", h.ApproveQuestion)
				r.Post("/moderation/{questionID}/reject", h.RejectQuestion)

				r.Get("/audit", h.QueryAuditLog)
				r.Get("/audit/export", h.ExportAuditLog)

				r.Route("/teams", func(r chi.Router) {
					r.Post("/", h.CreateTeam)
					r.Get("/", h.ListTeams)
					r.Get("/{teamID}/members", h.ListTeamMembers)
					r.Post("/{teamID}/members", h.AddTeamMember)
					r.Delete("/{teamID}/members/{userID}", h.RemoveTeamMember)
					r.Put("/{teamID}/members/{userID}/role", h.ChangeTeamMemberRole)
				})

				r.Post("/events/token", h.MintStreamToken)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pulse",
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(h.sessionConfig.Lifetime.Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps domain errors to HTTP statuses. Denials carry no
// detail about the missing permission, and cross-tenant lookups surface as
// the same not-found a nonexistent id would, so responses can't be used to
// probe another tenant's data.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, question.ErrQuestionNotFound),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, team.ErrTeamNotFound),
		errors.Is(err, team.ErrMembershipNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, question.ErrConcurrentTransition),
		errors.Is(err, question.ErrAlreadyUpvoted),
		errors.Is(err, question.ErrQuestionFrozen),
		errors.Is(err, team.ErrAlreadyMember),
		errors.Is(err, team.ErrLastOwner),
		errors.Is(err, team.ErrTeamAlreadyExists),
		errors.Is(err, tenant.ErrTenantAlreadyExists),
		errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, question.ErrContentRejected):
		respondError(w, http.StatusUnprocessableEntity, "content rejected")
	case errors.Is(err, question.ErrEmptyBody),
		errors.Is(err, question.ErrInvalidStatusFilter),
		errors.Is(err, tenant.ErrInvalidSlug),
		errors.Is(err, team.ErrInvalidRole),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenantctx.ErrContextUnbound), errors.Is(err, tenantctx.ErrTenantMismatch):
		// A request reached a scoped operation without coherent tenant
		// context. That is a server bug, never user input.
		slog.ErrorContext(r.Context(), "CRITICAL: tenant context integrity failure",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		slog.ErrorContext(r.Context(), "unhandled domain error",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
