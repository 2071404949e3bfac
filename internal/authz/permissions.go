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

// Package authz implements the compiled role/permission matrix and its
// team-scoped evaluation. The matrix below is authoritative: permission
// growth across the role order is NOT a strict superset relation, so checks
// must consult the table, never an assumed hierarchy.
package authz

// Role is a named privilege level held per team membership. RoleViewer is
// implicit for unauthenticated or non-member access and is never stored.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
)

// roleOrder is the total order viewer < member < moderator < admin < owner.
// It orders roles for HighestRole and IsRoleAtLeast; it does NOT imply
// permission inheritance.
var roleOrder = map[Role]int{
	RoleViewer:    0,
	RoleMember:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
	RoleOwner:     4,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleOrder[r]
	return ok
}

// AssignableRoles are the roles that may be stored on a team membership.
var AssignableRoles = []Role{RoleMember, RoleModerator, RoleAdmin, RoleOwner}

// Permission is a single named capability.
type Permission string

const (
	PermQuestionView   Permission = "question.view"
	PermQuestionCreate Permission = "question.create"
	PermQuestionUpvote Permission = "question.upvote"
	PermQuestionAnswer Permission = "question.answer"
	PermQuestionPin    Permission = "question.pin"
	PermQuestionFreeze Permission = "question.freeze"
	PermQuestionDelete Permission = "question.delete"

	PermTeamView    Permission = "team.view"
	PermTeamCreate  Permission = "team.create"
	PermTeamManage  Permission = "team.manage"
	PermMemberInvite      Permission = "member.invite"
	PermMemberRemove      Permission = "member.remove"
	PermMemberManageRoles Permission = "member.manage_roles"

	PermAuditView    Permission = "audit.view"
	PermAdminAccess  Permission = "admin.access"
	PermTenantManage Permission = "tenant.manage"
)

type permSet map[Permission]struct{}

func perms(ps ...Permission) permSet {
	set := make(permSet, len(ps))
	for _, p := range ps {
		set[p] = struct{}{}
	}
	return set
}

// rolePermissions is the compiled {role → permission-set} table.
//
// Deliberate irregularities, confirmed against product behavior:
//   - moderator holds admin.access (the moderation console lives behind the
//     admin surface) but NOT team.create or member management.
//   - admin lacks tenant.manage; only owner administers the tenant itself.
var rolePermissions = map[Role]permSet{
	// viewer may submit: anonymous questions are a product feature. The
	// moderation pipeline, not authentication, is the submission gate.
	RoleViewer: perms(
		PermQuestionView,
		PermQuestionCreate,
	),
	RoleMember: perms(
		PermQuestionView,
		PermQuestionCreate,
		PermQuestionUpvote,
		PermTeamView,
	),
	RoleModerator: perms(
		PermQuestionView,
		PermQuestionCreate,
		PermQuestionUpvote,
		PermQuestionAnswer,
		PermQuestionPin,
		PermQuestionFreeze,
		PermTeamView,
		PermAdminAccess,
	),
	RoleAdmin: perms(
		PermQuestionView,
		PermQuestionCreate,
		PermQuestionUpvote,
		PermQuestionAnswer,
		PermQuestionPin,
		PermQuestionFreeze,
		PermQuestionDelete,
		PermTeamView,
		PermTeamCreate,
		PermTeamManage,
		PermMemberInvite,
		PermMemberRemove,
		PermMemberManageRoles,
		PermAuditView,
		PermAdminAccess,
	),
	RoleOwner: perms(
		PermQuestionView,
		PermQuestionCreate,
		PermQuestionUpvote,
		PermQuestionAnswer,
		PermQuestionPin,
		PermQuestionFreeze,
		PermQuestionDelete,
		PermTeamView,
		PermTeamCreate,
		PermTeamManage,
		PermMemberInvite,
		PermMemberRemove,
		PermMemberManageRoles,
		PermAuditView,
		PermAdminAccess,
		PermTenantManage,
	),
}

// tenantWidePermissions admit tenant-wide authority: a user holding admin or
// owner on ANY team passes these checks for resources on teams they are not
// a member of. Moderation verbs (answer, pin, freeze) are deliberately
// absent; they are exercised only through a membership on the resource's
// own team.
var tenantWidePermissions = permSet{
	PermQuestionDelete:    {},
	PermTeamManage:        {},
	PermMemberInvite:      {},
	PermMemberRemove:      {},
	PermMemberManageRoles: {},
	PermAuditView:         {},
	PermAdminAccess:       {},
	PermTenantManage:      {},
}

// HasPermission reports whether role holds permission per the compiled table.
// Unknown roles hold nothing.
func HasPermission(role Role, permission Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[permission]
	return ok
}

// HasAnyPermission reports whether role holds at least one of permissions.
func HasAnyPermission(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role holds every one of permissions.
func HasAllPermissions(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// HighestRole resolves the maximal role across a user's memberships,
// defaulting to viewer when none exist or none are valid.
func HighestRole(roles []Role) Role {
	highest := RoleViewer
	for _, r := range roles {
		if rank, ok := roleOrder[r]; ok && rank > roleOrder[highest] {
			highest = r
		}
	}
	return highest
}

// IsRoleAtLeast reports whether role is at or above minimum in the role
// order. The comparison is reflexive. Unknown roles never satisfy it.
func IsRoleAtLeast(role, minimum Role) bool {
	rank, ok := roleOrder[role]
	if !ok {
		return false
	}
	minRank, ok := roleOrder[minimum]
	if !ok {
		return false
	}
	return rank >= minRank
}

// admitsTenantWideAuthority reports whether permission may be satisfied by
// an admin/owner membership on any team rather than the resource's team.
func admitsTenantWideAuthority(permission Permission) bool {
	_, ok := tenantWidePermissions[permission]
	return ok
}
