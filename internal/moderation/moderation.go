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

// Package moderation is the boundary to the external content-screening
// capability. Only the verdict shape and transport live here; routing on the
// verdict belongs to the question pipeline.
package moderation

import (
	"context"
)

// Confidence is the risk tier assigned by the moderation capability.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Verdict is the moderation capability's classification of one text.
type Verdict struct {
	Flagged    bool       `json:"flagged"`
	Confidence Confidence `json:"confidence"`
	Reasons    []string   `json:"reasons"`
	Providers  []string   `json:"providers"`
}

// Moderator classifies user-submitted text. Implementations are fallible
// and untrusted; callers own the fallback policy when Moderate errors.
type Moderator interface {
	Moderate(ctx context.Context, text string) (Verdict, error)
}
