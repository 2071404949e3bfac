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
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
	"github.com/pulsehq/pulse/internal/events"
	"github.com/pulsehq/pulse/internal/identity"
	"github.com/pulsehq/pulse/internal/moderation"
	"github.com/pulsehq/pulse/internal/notification"
	"github.com/pulsehq/pulse/internal/question"
	"github.com/pulsehq/pulse/internal/session"
	"github.com/pulsehq/pulse/internal/team"
	"github.com/pulsehq/pulse/internal/tenant"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// In-memory repositories backing handler tests. Tenant-owned stores derive
// their scope from the bound context exactly like the real data-access
// layer, so cross-tenant probes behave identically to production.

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func (r *memTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Slug == t.Slug {
			return tenant.ErrTenantAlreadyExists
		}
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *memTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *memTenantRepo) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *memTenantRepo) Update(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return tenant.ErrTenantNotFound
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *memTenantRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func (r *memUserRepo) Create(ctx context.Context, u *identity.User) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u.TenantID = tc.TenantID
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.TenantID == tc.TenantID {
		cp := *u
		return &cp, nil
	}
	return nil, identity.ErrUserNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.TenantID == tc.TenantID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *memUserRepo) Update(ctx context.Context, u *identity.User) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[u.ID]; !ok || existing.TenantID != tc.TenantID {
		return identity.ErrUserNotFound
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func (r *memSessionRepo) Create(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Get(sessionID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, session.ErrSessionNotFound
}

func (r *memSessionRepo) Update(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return session.ErrSessionNotFound
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired() error { return nil }

type memTeamRepo struct {
	mu    sync.Mutex
	teams map[string]*team.Team
}

func (r *memTeamRepo) Create(ctx context.Context, t *team.Team) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.TenantID = tc.TenantID
	cp := *t
	r.teams[t.ID] = &cp
	return nil
}

func (r *memTeamRepo) GetByID(ctx context.Context, id string) (*team.Team, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.teams[id]; ok && t.TenantID == tc.TenantID {
		cp := *t
		return &cp, nil
	}
	return nil, team.ErrTeamNotFound
}

func (r *memTeamRepo) GetBySlug(ctx context.Context, slug string) (*team.Team, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.Slug == slug && t.TenantID == tc.TenantID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, team.ErrTeamNotFound
}

func (r *memTeamRepo) List(ctx context.Context, limit, offset int) ([]*team.Team, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*team.Team
	for _, t := range r.teams {
		if t.TenantID == tc.TenantID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memMembershipRepo struct {
	mu          sync.Mutex
	memberships map[string]*team.Membership
}

func membershipKey(teamID, userID string) string { return teamID + "/" + userID }

func (r *memMembershipRepo) Create(ctx context.Context, m *team.Membership) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey(m.TeamID, m.UserID)
	if _, ok := r.memberships[key]; ok {
		return team.ErrAlreadyMember
	}
	m.TenantID = tc.TenantID
	cp := *m
	r.memberships[key] = &cp
	return nil
}

func (r *memMembershipRepo) Get(ctx context.Context, teamID, userID string) (*team.Membership, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.memberships[membershipKey(teamID, userID)]; ok && m.TenantID == tc.TenantID {
		cp := *m
		return &cp, nil
	}
	return nil, team.ErrMembershipNotFound
}

func (r *memMembershipRepo) ListByUser(ctx context.Context, userID string) ([]*team.Membership, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*team.Membership
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tc.TenantID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMembershipRepo) ListByTeam(ctx context.Context, teamID string) ([]*team.Membership, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*team.Membership
	for _, m := range r.memberships {
		if m.TeamID == teamID && m.TenantID == tc.TenantID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMembershipRepo) UpdateRole(ctx context.Context, teamID, userID string, role authz.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[membershipKey(teamID, userID)]
	if !ok {
		return team.ErrMembershipNotFound
	}
	m.Role = role
	return nil
}

func (r *memMembershipRepo) Delete(ctx context.Context, teamID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey(teamID, userID)
	if _, ok := r.memberships[key]; !ok {
		return team.ErrMembershipNotFound
	}
	delete(r.memberships, key)
	return nil
}

func (r *memMembershipRepo) CountByRole(ctx context.Context, teamID string, role authz.Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.memberships {
		if m.TeamID == teamID && m.Role == role {
			count++
		}
	}
	return count, nil
}

type memQuestionRepo struct {
	mu        sync.Mutex
	questions map[string]*question.Question
	upvotes   map[string]map[string]bool
}

func (r *memQuestionRepo) Create(ctx context.Context, q *question.Question) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q.TenantID = tc.TenantID
	cp := *q
	r.questions[q.ID] = &cp
	return nil
}

func (r *memQuestionRepo) GetByID(ctx context.Context, id string) (*question.Question, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.questions[id]; ok && q.TenantID == tc.TenantID {
		cp := *q
		return &cp, nil
	}
	return nil, question.ErrQuestionNotFound
}

func (r *memQuestionRepo) List(ctx context.Context, filter question.ListFilter) ([]*question.Question, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*question.Question
	for _, q := range r.questions {
		if q.TenantID != tc.TenantID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.TeamID != "" && (q.TeamID == nil || *q.TeamID != filter.TeamID) {
			continue
		}
		cp := *q
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memQuestionRepo) TransitionStatus(ctx context.Context, id string, from, to question.Status, update question.StatusUpdate) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok || q.TenantID != tc.TenantID || q.Status != from {
		return question.ErrConcurrentTransition
	}
	q.Status = to
	q.ReviewedBy = update.ReviewedBy
	q.ReviewedAt = update.ReviewedAt
	if update.Answer != nil {
		q.Answer = update.Answer
	}
	return nil
}

func (r *memQuestionRepo) DeleteIfStatus(ctx context.Context, id string, status question.Status) error {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok || q.TenantID != tc.TenantID || q.Status != status {
		return question.ErrConcurrentTransition
	}
	delete(r.questions, id)
	return nil
}

func (r *memQuestionRepo) SetPinned(ctx context.Context, id string, pinned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return question.ErrQuestionNotFound
	}
	q.Pinned = pinned
	return nil
}

func (r *memQuestionRepo) SetFrozen(ctx context.Context, id string, frozen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return question.ErrQuestionNotFound
	}
	q.Frozen = frozen
	return nil
}

func (r *memQuestionRepo) AddUpvote(ctx context.Context, questionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return question.ErrQuestionNotFound
	}
	voters := r.upvotes[questionID]
	if voters == nil {
		voters = make(map[string]bool)
		r.upvotes[questionID] = voters
	}
	if voters[userID] {
		return question.ErrAlreadyUpvoted
	}
	voters[userID] = true
	q.Upvotes++
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (r *memAuditRepo) Insert(ctx context.Context, record *audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *memAuditRepo) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.Record
	for _, rec := range r.records {
		if rec.TenantID == tc.TenantID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAuditRepo) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	records, err := r.Query(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// cleanModerator passes every submission.
type cleanModerator struct{}

func (cleanModerator) Moderate(ctx context.Context, body string) (moderation.Verdict, error) {
	return moderation.Verdict{Flagged: false}, nil
}

const testCookieName = "pulse_session"

type fixture struct {
	handler  *Handler
	router   http.Handler
	tenants  *tenant.Service
	identity *identity.Service
	sessions *session.Service
	teams    *team.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenantSvc := tenant.NewService(&memTenantRepo{tenants: map[string]*tenant.Tenant{}})
	hasher := identity.NewPasswordHasher(65536, 3, 4, 16, 32)
	identitySvc := identity.NewService(&memUserRepo{users: map[string]*identity.User{}}, hasher)
	sessionSvc := session.NewService(&memSessionRepo{sessions: map[string]*session.Session{}}, time.Hour, time.Hour)

	auditSvc := audit.NewService(&memAuditRepo{}, 64, nil)
	t.Cleanup(auditSvc.Close)

	teamSvc := team.NewService(
		&memTeamRepo{teams: map[string]*team.Team{}},
		&memMembershipRepo{memberships: map[string]*team.Membership{}},
		auditSvc,
	)
	checker := authz.NewChecker(teamSvc, nil)
	notifier := events.NewNotifier(16, time.Minute, nil)

	questionSvc := question.NewService(
		&memQuestionRepo{questions: map[string]*question.Question{}, upvotes: map[string]map[string]bool{}},
		teamSvc,
		cleanModerator{},
		checker,
		auditSvc,
		notifier,
		noopDispatcher{},
		nil,
	)

	h := NewHandler(
		tenantSvc, identitySvc, sessionSvc, teamSvc, questionSvc, auditSvc,
		notifier, checker,
		SessionConfig{
			CookieName:     testCookieName,
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteLaxMode,
			Lifetime:       time.Hour,
		},
		NewStreamTokenIssuer("0123456789abcdef0123456789abcdef", 5*time.Minute),
	)

	return &fixture{
		handler:  h,
		router:   NewRouter(h, NewRateLimiter(10000, 10000)),
		tenants:  tenantSvc,
		identity: identitySvc,
		sessions: sessionSvc,
		teams:    teamSvc,
	}
}

type noopDispatcher struct{}

func (noopDispatcher) Enqueue(ctx context.Context, n notification.Notification) {}

// provisionTenant creates a tenant with one user and an open session,
// returning the tenant, the user, and a session cookie.
func (f *fixture) provisionTenant(t *testing.T, slug, email string) (*tenant.Tenant, *identity.User, *http.Cookie) {
	t.Helper()
	ctx := context.Background()

	tn, err := f.tenants.Create(ctx, slug, slug)
	require.NoError(t, err)

	scoped := tenantctx.Bind(ctx, tenantctx.TenantContext{TenantID: tn.ID, TenantSlug: tn.Slug})
	user, err := f.identity.Provision(scoped, identity.ProvisionInput{
		Email:    email,
		Name:     "Test User",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	sess, err := f.sessions.Create(scoped, tn.ID, tn.Slug, user.ID, "127.0.0.1", "test-agent")
	require.NoError(t, err)

	return tn, user, &http.Cookie{Name: testCookieName, Value: sess.ID}
}
