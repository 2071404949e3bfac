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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulsehq/pulse/internal/observability/logger"
	"github.com/pulsehq/pulse/internal/tenantctx"
)

// StreamTokenClaims scope a stream token to one tenant and user.
type StreamTokenClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// StreamTokenIssuer mints and verifies short-lived tokens for the event
// stream. EventSource cannot set headers, so the browser authenticates the
// stream with a token minted over the authenticated API instead of the
// session cookie.
type StreamTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewStreamTokenIssuer creates a stream token issuer
func NewStreamTokenIssuer(secret string, ttl time.Duration) *StreamTokenIssuer {
	return &StreamTokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Mint creates a signed token scoped to tenantID and userID
func (i *StreamTokenIssuer) Mint(tenantID, userID string) (string, error) {
	now := time.Now()
	claims := &StreamTokenClaims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign stream token: %w", err)
	}
	return signed, nil
}

// Verify validates a stream token and returns its claims
func (i *StreamTokenIssuer) Verify(tokenString string) (*StreamTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StreamTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid stream token: %w", err)
	}

	claims, ok := token.Claims.(*StreamTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid stream token claims")
	}
	return claims, nil
}

// MintStreamToken issues a short-lived event stream token for the
// authenticated user.
func (h *Handler) MintStreamToken(w http.ResponseWriter, r *http.Request) {
	tc := tenantctx.MustFrom(r.Context())

	token, err := h.streamTokens.Mint(tc.TenantID, GetUserID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to mint stream token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// EventStream serves the tenant's event feed over Server-Sent Events. The
// token must have been minted for the tenant bound to the URL; a token from
// another tenant is rejected without detail.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	claims, err := h.streamTokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	tc := tenantctx.MustFrom(r.Context())
	if claims.TenantID != tc.TenantID {
		respondError(w, http.StatusForbidden, "not authorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.notifier.Subscribe(tc.TenantID)
	defer h.notifier.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to marshal event", logger.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}
