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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// Tenant Context Principles:
// 1. Tenant context is bound exactly once per request, by TenantResolver.
// 2. Authenticated sessions must agree with the URL tenant; a mismatch is
//    rejected, never silently rebound.
// 3. X-Tenant-ID and similar headers are FORBIDDEN as tenant sources.

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TenantResolver resolves the URL tenant slug and binds tenant context for
// the rest of the request. Unknown and deactivated tenants are
// indistinguishable from each other.
func (h *Handler) TenantResolver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header spoofing attempt rejected",
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed; tenant is derived from the URL")
			return
		}

		slug := chi.URLParam(r, "tenantSlug")
		t, err := h.tenantService.Resolve(r.Context(), slug)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}

		ctx := tenantctx.Bind(r.Context(), tenantctx.TenantContext{
			TenantID:   t.ID,
			TenantSlug: t.Slug,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware validates the session cookie, checks the session tenant
// against the bound tenant, and attaches user identity and audit provenance
// to the context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if ctx == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthMiddleware attaches user identity when a valid session cookie
// is present and lets anonymous requests through untouched. A session bound
// to a different tenant is still rejected: a stale cookie must not let a
// request masquerade inside another tenant.
func (h *Handler) OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if ctx == nil {
			// Anonymous: record provenance without an actor.
			ctx = audit.WithActor(r.Context(), audit.Actor{
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
			})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the session cookie. It returns (ctx, true) with an
// enriched context for a valid session, (nil, true) when no usable session
// exists, and (nil, false) after writing a response itself.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		return nil, true
	}

	sess, err := h.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		h.clearSessionCookie(w)
		return nil, true
	}

	// The session's tenant must agree with the tenant bound from the URL.
	if _, err := tenantctx.Require(r.Context(), sess.TenantID); err != nil {
		slog.WarnContext(r.Context(), "session tenant does not match request tenant",
			logger.SessionID(sess.ID[:8]+"..."),
			logger.Error(err),
		)
		respondError(w, http.StatusForbidden, "not authorized")
		return nil, false
	}

	if err := h.sessionService.Refresh(r.Context(), sess.ID); err != nil {
		slog.ErrorContext(r.Context(), "failed to refresh session", logger.Error(err))
	}

	userID := sess.UserID
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sess.ID)
	ctx = audit.WithActor(ctx, audit.Actor{
		UserID:    &userID,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})
	return ctx, true
}
