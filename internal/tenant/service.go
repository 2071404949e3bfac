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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// slugPattern constrains tenant slugs to URL-safe lowercase identifiers.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// Service provides tenant management business logic
type Service struct {
	repo Repository
}

// NewService creates a new tenant service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create provisions a new tenant at signup. The slug is the stable external
// handle used for tenant resolution; it must be unique deployment-wide.
func (s *Service) Create(ctx context.Context, slug, name string) (*Tenant, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrTenantAlreadyExists
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check tenant slug: %w", err)
	}

	now := time.Now()
	t := &Tenant{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      slug,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return t, nil
}

// Resolve retrieves an active tenant by slug. Inactive tenants resolve as
// not found so suspended organizations disappear from the outside.
func (s *Service) Resolve(ctx context.Context, slug string) (*Tenant, error) {
	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusActive {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// Get retrieves a tenant by ID
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// Deactivate suspends a tenant. Tenants are never hard-deleted; every child
// entity keeps its tenant_id and the audit history stays intact.
func (s *Service) Deactivate(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Status = StatusInactive
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	return t, nil
}

// List retrieves tenants with pagination
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}
