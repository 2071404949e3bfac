package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRoleSource struct {
	mock.Mock
}

func (m *mockRoleSource) RolesForUser(ctx context.Context, userID string) ([]TeamRole, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TeamRole), args.Error(1)
}

// TestPurpose: Validates the compiled permission matrix against its known
// irregularities instead of assuming a monotone superset hierarchy.
// Scope: Unit Test
// Security: Privilege boundaries between moderation and team management.
func TestAuthz_Matrix_NotMonotone(t *testing.T) {
	// moderator gains admin.access without team.create.
	assert.True(t, HasPermission(RoleModerator, PermAdminAccess))
	assert.False(t, HasPermission(RoleModerator, PermTeamCreate))
	assert.False(t, HasPermission(RoleModerator, PermMemberInvite))

	// admin holds everything moderation-related plus team management,
	// but not tenant administration.
	assert.True(t, HasPermission(RoleAdmin, PermTeamCreate))
	assert.True(t, HasPermission(RoleAdmin, PermAuditView))
	assert.False(t, HasPermission(RoleAdmin, PermTenantManage))

	// owner is the only role with tenant.manage.
	assert.True(t, HasPermission(RoleOwner, PermTenantManage))

	// viewer sees and submits questions but never votes or moderates.
	assert.True(t, HasPermission(RoleViewer, PermQuestionView))
	assert.True(t, HasPermission(RoleViewer, PermQuestionCreate))
	assert.False(t, HasPermission(RoleViewer, PermQuestionUpvote))

	// member cannot answer or moderate.
	assert.True(t, HasPermission(RoleMember, PermQuestionCreate))
	assert.False(t, HasPermission(RoleMember, PermQuestionAnswer))
	assert.False(t, HasPermission(RoleMember, PermAdminAccess))

	// unknown roles hold nothing.
	assert.False(t, HasPermission(Role("superuser"), PermQuestionView))
}

func TestAuthz_Combinators(t *testing.T) {
	assert.True(t, HasAnyPermission(RoleModerator, PermTeamCreate, PermQuestionAnswer))
	assert.False(t, HasAnyPermission(RoleMember, PermTeamCreate, PermQuestionAnswer))
	assert.True(t, HasAllPermissions(RoleAdmin, PermQuestionAnswer, PermTeamManage))
	assert.False(t, HasAllPermissions(RoleModerator, PermQuestionAnswer, PermTeamManage))
	assert.True(t, HasAllPermissions(RoleViewer)) // vacuous
}

func TestAuthz_HighestRole(t *testing.T) {
	assert.Equal(t, RoleViewer, HighestRole(nil))
	assert.Equal(t, RoleViewer, HighestRole([]Role{}))
	assert.Equal(t, RoleAdmin, HighestRole([]Role{RoleMember, RoleAdmin, RoleModerator}))
	assert.Equal(t, RoleOwner, HighestRole([]Role{RoleOwner, RoleMember}))
	// invalid roles are ignored, not promoted.
	assert.Equal(t, RoleMember, HighestRole([]Role{Role("root"), RoleMember}))
}

func TestAuthz_IsRoleAtLeast(t *testing.T) {
	assert.True(t, IsRoleAtLeast(RoleModerator, RoleModerator)) // reflexive
	assert.True(t, IsRoleAtLeast(RoleOwner, RoleViewer))
	assert.False(t, IsRoleAtLeast(RoleMember, RoleModerator))
	assert.False(t, IsRoleAtLeast(Role("root"), RoleViewer))
	assert.False(t, IsRoleAtLeast(RoleOwner, Role("root")))
}

// TestPurpose: Validates team-scoped evaluation: the membership on the
// resource's team decides, and moderation permissions never fall back to
// authority held on other teams.
// Scope: Unit Test
// Security: Team privilege boundary within a tenant.
func TestAuthz_Checker_TeamScoped(t *testing.T) {
	ctx := context.Background()

	t.Run("admin on another team cannot answer here", func(t *testing.T) {
		src := new(mockRoleSource)
		src.On("RolesForUser", ctx, "u-1").Return([]TeamRole{
			{TeamID: "eng", Role: RoleAdmin},
		}, nil)
		checker := NewChecker(src, nil)

		_, err := checker.Check(ctx, "u-1", PermQuestionAnswer, CheckOptions{TeamID: "sales"})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("moderator on the resource team can answer", func(t *testing.T) {
		src := new(mockRoleSource)
		src.On("RolesForUser", ctx, "u-1").Return([]TeamRole{
			{TeamID: "eng", Role: RoleModerator},
		}, nil)
		checker := NewChecker(src, nil)

		role, err := checker.Check(ctx, "u-1", PermQuestionAnswer, CheckOptions{TeamID: "eng"})
		require.NoError(t, err)
		assert.Equal(t, RoleModerator, role)
	})

	t.Run("member on the resource team cannot answer", func(t *testing.T) {
		src := new(mockRoleSource)
		src.On("RolesForUser", ctx, "u-1").Return([]TeamRole{
			{TeamID: "eng", Role: RoleMember},
		}, nil)
		checker := NewChecker(src, nil)

		_, err := checker.Check(ctx, "u-1", PermQuestionAnswer, CheckOptions{TeamID: "eng"})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("tenant-wide permission reaches across teams for admin", func(t *testing.T) {
		src := new(mockRoleSource)
		src.On("RolesForUser", ctx, "u-1").Return([]TeamRole{
			{TeamID: "eng", Role: RoleAdmin},
		}, nil)
		checker := NewChecker(src, nil)

		role, err := checker.Check(ctx, "u-1", PermMemberRemove, CheckOptions{TeamID: "sales"})
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, role)
	})

	t.Run("tenant-wide permission does not reach across teams for moderator", func(t *testing.T) {
		src := new(mockRoleSource)
		src.On("RolesForUser", ctx, "u-1").Return([]TeamRole{
			{TeamID: "eng", Role: RoleModerator},
		}, nil)
		checker := NewChecker(src, nil)

		_, err := checker.Check(ctx, "u-1", PermMemberRemove, CheckOptions{TeamID: "sales"})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestAuthz_Checker_Unauthenticated(t *testing.T) {
	checker := NewChecker(new(mockRoleSource), nil)

	role, err := checker.Check(context.Background(), "", PermQuestionView, CheckOptions{})
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	_, err = checker.Check(context.Background(), "", PermQuestionUpvote, CheckOptions{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

// TestPurpose: Validates that any role-lookup failure denies rather than
// granting a default.
// Scope: Unit Test
// Security: Fail-closed authorization.
func TestAuthz_Checker_FailsClosed(t *testing.T) {
	src := new(mockRoleSource)
	src.On("RolesForUser", mock.Anything, "u-1").Return(nil, errors.New("storage down"))
	checker := NewChecker(src, nil)

	_, err := checker.Check(context.Background(), "u-1", PermQuestionView, CheckOptions{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthz_DenySelf(t *testing.T) {
	self := "u-1"
	other := "u-2"

	assert.ErrorIs(t, DenySelf("u-1", &self), ErrPermissionDenied)
	assert.NoError(t, DenySelf("u-1", &other))
	assert.NoError(t, DenySelf("u-1", nil)) // anonymous content
}
