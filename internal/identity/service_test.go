package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, u *User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func testHasher() *PasswordHasher {
	// Low-cost parameters; production values come from config.
	return NewPasswordHasher(8*1024, 1, 1, 16, 32)
}

func TestIdentity_PasswordHasher_RoundTrip(t *testing.T) {
	hasher := testHasher()

	encoded, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentity_PasswordHasher_RejectsMalformedHash(t *testing.T) {
	hasher := testHasher()
	_, err := hasher.Verify("anything", "$bcrypt$not-argon2")
	assert.Error(t, err)
}

func TestIdentity_Service_Provision(t *testing.T) {
	repo := new(mockUserRepo)
	service := NewService(repo, testHasher())
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ada@acme.test").Return(nil, ErrUserNotFound)
	repo.On("Create", ctx, mock.MatchedBy(func(u *User) bool {
		return u.Email == "ada@acme.test" && u.PasswordHash != "" && u.TenantID == ""
	})).Return(nil)

	user, err := service.Provision(ctx, ProvisionInput{
		Email:    "  Ada@Acme.test ",
		Name:     "Ada",
		Password: "a long enough password",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.test", user.Email)
	repo.AssertExpectations(t)
}

func TestIdentity_Service_Provision_Validation(t *testing.T) {
	service := NewService(new(mockUserRepo), testHasher())
	ctx := context.Background()

	_, err := service.Provision(ctx, ProvisionInput{Email: "not-an-email", Password: "a long enough password"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = service.Provision(ctx, ProvisionInput{Email: "a@b.test", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestIdentity_Service_Provision_DuplicateEmail(t *testing.T) {
	repo := new(mockUserRepo)
	service := NewService(repo, testHasher())
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ada@acme.test").Return(&User{ID: "u-1"}, nil)

	_, err := service.Provision(ctx, ProvisionInput{Email: "ada@acme.test", Password: "a long enough password"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

// TestPurpose: Validates that unknown email and wrong password are
// indistinguishable to the caller.
// Scope: Unit Test
// Security: Account enumeration resistance.
func TestIdentity_Service_Authenticate_Uniform(t *testing.T) {
	repo := new(mockUserRepo)
	hasher := testHasher()
	service := NewService(repo, hasher)
	ctx := context.Background()

	hash, err := hasher.Hash("a long enough password")
	require.NoError(t, err)

	repo.On("GetByEmail", ctx, "known@acme.test").Return(&User{ID: "u-1", PasswordHash: hash}, nil)
	repo.On("GetByEmail", ctx, "unknown@acme.test").Return(nil, ErrUserNotFound)

	_, err = service.Authenticate(ctx, "unknown@acme.test", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Authenticate(ctx, "known@acme.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := service.Authenticate(ctx, "known@acme.test", "a long enough password")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}

func TestIdentity_Service_SetPrimaryTeam(t *testing.T) {
	repo := new(mockUserRepo)
	service := NewService(repo, testHasher())
	ctx := context.Background()

	teamID := "team-1"
	repo.On("GetByID", ctx, "u-1").Return(&User{ID: "u-1"}, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(u *User) bool {
		return u.PrimaryTeamID != nil && *u.PrimaryTeamID == teamID
	})).Return(nil)

	user, err := service.SetPrimaryTeam(ctx, "u-1", &teamID)
	require.NoError(t, err)
	assert.Equal(t, &teamID, user.PrimaryTeamID)
	repo.AssertExpectations(t)
}

// SSO-provisioned users have no password and never authenticate locally.
func TestIdentity_Service_Authenticate_SSOUserHasNoPassword(t *testing.T) {
	repo := new(mockUserRepo)
	service := NewService(repo, testHasher())
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "sso@acme.test").Return(&User{ID: "u-2", SSOID: "okta|123"}, nil)

	_, err := service.Authenticate(ctx, "sso@acme.test", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
