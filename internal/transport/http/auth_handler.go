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
	"log/slog"
	"net/http"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/identity"
	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// SignupRequest creates a tenant with its first user.
type SignupRequest struct {
	TenantSlug string `json:"tenant_slug"`
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
}

// Signup provisions a new tenant and its first user. This is the only
// operation that runs before tenant context exists; it binds the context
// itself once the tenant row is created.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenantService.Create(r.Context(), req.TenantSlug, req.TenantName)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	ctx := tenantctx.Bind(r.Context(), tenantctx.TenantContext{
		TenantID:   t.ID,
		TenantSlug: t.Slug,
	})

	user, err := h.identityService.Provision(ctx, identity.ProvisionInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		// The tenant exists but its first user failed validation. Surface
		// the user error; the empty tenant is reclaimable by retrying with
		// a fresh slug.
		slog.ErrorContext(ctx, "tenant created but first user provisioning failed",
			logger.TenantID(t.ID),
			logger.Error(err),
		)
		respondDomainError(w, r, err)
		return
	}

	h.auditService.Log(ctx, audit.Entry{
		Action:     audit.ActionTenantCreated,
		EntityType: audit.EntityTenant,
		EntityID:   &t.ID,
		Metadata:   map[string]any{"slug": t.Slug, "first_user": user.ID},
	})
	h.auditService.Log(ctx, audit.Entry{
		Action:     audit.ActionUserProvisioned,
		EntityType: audit.EntityUser,
		EntityID:   &user.ID,
		Metadata:   map[string]any{"email": user.Email},
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant_id":   t.ID,
		"tenant_slug": t.Slug,
		"user_id":     user.ID,
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user within the URL tenant and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tc := tenantctx.MustFrom(r.Context())

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// Uniform response: no hint whether the account exists.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessionService.Create(
		r.Context(),
		tc.TenantID,
		tc.TenantSlug,
		user.ID,
		getIPAddress(r),
		r.UserAgent(),
	)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// Logout destroys the current session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := GetSessionID(r.Context()); sessionID != "" {
		if err := h.sessionService.Destroy(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to destroy session", logger.Error(err))
		}
	}
	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// GetCurrentUser returns the authenticated user's identity and team roles.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	user, err := h.identityService.Get(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	roles, err := h.teamService.RolesForUser(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"name":    user.Name,
		"roles":   roles,
	})
}
