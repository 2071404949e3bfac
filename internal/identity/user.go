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

package identity

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrTenantImmutable    = errors.New("tenant id is immutable after creation")
)

// User is an identity within exactly one tenant. TenantID is immutable after
// creation; moving a user between tenants is provisioning a new identity.
// Email is unique per tenant, not deployment-wide.
type User struct {
	ID            string
	TenantID      string
	Email         string
	Name          string
	SSOID         string
	PasswordHash  string
	PrimaryTeamID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the resolved acting user handed to the permission model.
type Identity struct {
	ID    string
	Email string
	Name  string
}
