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

package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pulsehq/pulse/internal/observability/logger"
)

// ErrPermissionDenied is returned for every denial. It deliberately carries
// no detail: responses built from it must not reveal team existence,
// cross-tenant existence, or the role that would have sufficed.
var ErrPermissionDenied = errors.New("not authorized")

// TeamRole is one (team, role) pair from a user's memberships.
type TeamRole struct {
	TeamID string
	Role   Role
}

// RoleSource supplies a user's team roles within the bound tenant.
// Implemented by the team service; lookups are tenant-scoped by the
// data-access layer.
type RoleSource interface {
	RolesForUser(ctx context.Context, userID string) ([]TeamRole, error)
}

// Checker evaluates team-scoped permission checks. It is an explicitly
// constructed component; there is no package-level instance.
type Checker struct {
	roles   RoleSource
	denials metric.Int64Counter
}

// NewChecker creates a permission checker backed by the given role source.
// denials may be nil.
func NewChecker(roles RoleSource, denials metric.Int64Counter) *Checker {
	return &Checker{roles: roles, denials: denials}
}

// CheckOptions narrows a check to a team extracted from the requested
// resource. TeamID empty means the resource is not team-scoped.
type CheckOptions struct {
	TeamID string
}

// Check evaluates permission for userID under opts and returns the effective
// role when granted. userID empty means unauthenticated and evaluates as
// viewer. Any lookup failure denies: checks fail closed.
//
// Resolution, in order:
//  1. membership on opts.TeamID → that membership's role decides;
//  2. no membership there, but the permission admits tenant-wide authority →
//     an admin/owner membership on any team decides;
//  3. no team scoping → the user's highest role across memberships decides.
func (c *Checker) Check(ctx context.Context, userID string, permission Permission, opts CheckOptions) (Role, error) {
	if userID == "" {
		if HasPermission(RoleViewer, permission) {
			return RoleViewer, nil
		}
		return c.deny(ctx, RoleViewer, permission)
	}

	memberships, err := c.roles.RolesForUser(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "permission check failed closed on role lookup",
			logger.UserID(userID),
			logger.Permission(string(permission)),
			logger.Error(err),
		)
		role, _ := c.deny(ctx, RoleViewer, permission)
		return role, fmt.Errorf("%w", ErrPermissionDenied)
	}

	if opts.TeamID != "" {
		for _, m := range memberships {
			if m.TeamID == opts.TeamID {
				if HasPermission(m.Role, permission) {
					return m.Role, nil
				}
				return c.deny(ctx, m.Role, permission)
			}
		}
		// Not a member of the resource's team. Tenant-wide authority may
		// still apply for permissions that admit it.
		if admitsTenantWideAuthority(permission) {
			for _, m := range memberships {
				if IsRoleAtLeast(m.Role, RoleAdmin) && HasPermission(m.Role, permission) {
					return m.Role, nil
				}
			}
		}
		return c.deny(ctx, RoleViewer, permission)
	}

	highest := HighestRole(rolesOf(memberships))
	if HasPermission(highest, permission) {
		return highest, nil
	}
	return c.deny(ctx, highest, permission)
}

func (c *Checker) deny(ctx context.Context, role Role, permission Permission) (Role, error) {
	if c.denials != nil {
		c.denials.Add(ctx, 1, metric.WithAttributes(
			attribute.String("permission", string(permission)),
		))
	}
	return role, ErrPermissionDenied
}

// DenySelf rejects actions a user may never apply to their own content,
// regardless of role (e.g. self-upvote). Applied by callers above the
// permission lookup, not baked into the matrix.
func DenySelf(actorID string, subjectID *string) error {
	if subjectID != nil && actorID != "" && actorID == *subjectID {
		return ErrPermissionDenied
	}
	return nil
}

func rolesOf(memberships []TeamRole) []Role {
	roles := make([]Role, 0, len(memberships))
	for _, m := range memberships {
		roles = append(roles, m.Role)
	}
	return roles
}
