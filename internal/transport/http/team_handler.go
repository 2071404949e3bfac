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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsehq/pulse/internal/authz"
)

// CreateTeamRequest represents team creation data
type CreateTeamRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// CreateTeam provisions a team; the caller becomes its first owner.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := GetUserID(r.Context())
	if _, err := h.checkPermission(r, authz.PermTeamCreate, ""); err != nil {
		respondDomainError(w, r, err)
		return
	}

	t, err := h.teamService.Create(r.Context(), req.Slug, req.Name, actorID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

// ListTeams returns the tenant's teams
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	if _, err := h.checkPermission(r, authz.PermTeamView, ""); err != nil {
		respondDomainError(w, r, err)
		return
	}

	teams, err := h.teamService.List(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

// ListTeamMembers returns a team's memberships
func (h *Handler) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	if _, err := h.checkPermission(r, authz.PermTeamView, teamID); err != nil {
		respondDomainError(w, r, err)
		return
	}

	members, err := h.teamService.Members(r.Context(), teamID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// AddTeamMemberRequest represents member addition data
type AddTeamMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddTeamMember adds a user to a team with an assignable role
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	var req AddTeamMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	teamID := chi.URLParam(r, "teamID")
	if _, err := h.checkPermission(r, authz.PermMemberInvite, teamID); err != nil {
		respondDomainError(w, r, err)
		return
	}

	m, err := h.teamService.AddMember(r.Context(), teamID, req.UserID, authz.Role(req.Role))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, m)
}

// RemoveTeamMember removes a user from a team
func (h *Handler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	if _, err := h.checkPermission(r, authz.PermMemberRemove, teamID); err != nil {
		respondDomainError(w, r, err)
		return
	}

	if err := h.teamService.RemoveMember(r.Context(), teamID, chi.URLParam(r, "userID")); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ChangeTeamMemberRoleRequest represents a role change
type ChangeTeamMemberRoleRequest struct {
	Role string `json:"role"`
}

// ChangeTeamMemberRole changes a member's role on a team
func (h *Handler) ChangeTeamMemberRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeTeamMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	teamID := chi.URLParam(r, "teamID")
	if _, err := h.checkPermission(r, authz.PermMemberManageRoles, teamID); err != nil {
		respondDomainError(w, r, err)
		return
	}

	if err := h.teamService.ChangeRole(r.Context(), teamID, chi.URLParam(r, "userID"), authz.Role(req.Role)); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "role changed"})
}

// checkPermission evaluates a permission for the acting user against the
// tenant bound to the request.
func (h *Handler) checkPermission(r *http.Request, permission authz.Permission, teamID string) (authz.Role, error) {
	return h.checker.Check(r.Context(), GetUserID(r.Context()), permission, authz.CheckOptions{TeamID: teamID})
}
