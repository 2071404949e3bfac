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

// Package tenantctx binds the active tenant to a context.Context for the
// duration of one logical operation. Tenant identity is derived exclusively
// from this binding; an unbound context is a hard failure, never an implicit
// "all tenants" default.
package tenantctx

import (
	"context"
	"errors"
	"fmt"
)

// Isolation errors. Both are treated as programming errors by callers:
// they abort the request and are logged as critical, never recovered locally.
var (
	// ErrContextUnbound indicates a tenant-scoped operation was attempted
	// with no tenant bound to the context.
	ErrContextUnbound = errors.New("tenant context not bound")

	// ErrTenantMismatch indicates an operation carried a tenant id that
	// conflicts with the tenant bound to the context.
	ErrTenantMismatch = errors.New("tenant id conflicts with bound tenant context")
)

// TenantContext identifies the active tenant for one logical operation.
// It is ephemeral and never persisted.
type TenantContext struct {
	TenantID   string
	TenantSlug string
}

type ctxKey struct{}

// Bind returns a child context carrying tc. Re-binding a context already
// bound to a different tenant is not detected here; handlers bind exactly
// once per request.
func Bind(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// From retrieves the bound tenant context. It returns ErrContextUnbound when
// no tenant is bound; callers must treat this as fatal for the operation.
func From(ctx context.Context) (TenantContext, error) {
	tc, ok := ctx.Value(ctxKey{}).(TenantContext)
	if !ok || tc.TenantID == "" {
		return TenantContext{}, ErrContextUnbound
	}
	return tc, nil
}

// MustFrom retrieves the bound tenant context and panics when unbound.
// Only for call sites that run strictly behind the tenant-binding middleware.
func MustFrom(ctx context.Context) TenantContext {
	tc, err := From(ctx)
	if err != nil {
		panic(err)
	}
	return tc
}

// Run binds tc and invokes fn with the bound context. The binding is scoped
// to fn and everything it transitively calls; the caller's context is
// unaffected.
func Run(ctx context.Context, tc TenantContext, fn func(ctx context.Context) error) error {
	return fn(Bind(ctx, tc))
}

// Require verifies that pinnedTenantID, when non-empty, matches the bound
// tenant. A pin for a different tenant fails loudly with ErrTenantMismatch
// instead of returning empty results, so cross-tenant bugs surface early.
func Require(ctx context.Context, pinnedTenantID string) (TenantContext, error) {
	tc, err := From(ctx)
	if err != nil {
		return TenantContext{}, err
	}
	if pinnedTenantID != "" && pinnedTenantID != tc.TenantID {
		return TenantContext{}, fmt.Errorf("%w: bound=%s pinned=%s", ErrTenantMismatch, tc.TenantID, pinnedTenantID)
	}
	return tc, nil
}
