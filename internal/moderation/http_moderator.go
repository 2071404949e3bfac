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

package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPModerator calls an external moderation endpoint over JSON/HTTP.
type HTTPModerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPModerator creates a moderation client for the given endpoint.
func NewHTTPModerator(endpoint, apiKey string, timeout time.Duration) *HTTPModerator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPModerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type moderateRequest struct {
	Text string `json:"text"`
}

// Moderate submits text for classification. Any transport or decoding
// failure is returned to the caller; the pipeline applies its single
// documented fallback policy.
func (m *HTTPModerator) Moderate(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(moderateRequest{Text: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("moderation endpoint returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode moderation verdict: %w", err)
	}

	switch verdict.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	case "":
		if verdict.Flagged {
			// A flagged verdict without a tier is treated as the most
			// cautious reviewable tier, not as an auto-reject.
			verdict.Confidence = ConfidenceMedium
		}
	default:
		return Verdict{}, fmt.Errorf("moderation endpoint returned unknown confidence %q", verdict.Confidence)
	}

	return verdict, nil
}
