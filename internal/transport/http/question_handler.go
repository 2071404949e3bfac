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
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulsehq/pulse/internal/moderation"
	"github.com/pulsehq/pulse/internal/question"
)

// SubmitQuestionRequest represents a new submission
type SubmitQuestionRequest struct {
	Body   string  `json:"body"`
	TeamID *string `json:"team_id,omitempty"`
}

// SubmitQuestion runs the moderation pipeline for a new question. Anonymous
// submissions are allowed; the actor is whoever the session says, or nobody.
func (h *Handler) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	var req SubmitQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := h.questionService.Submit(r.Context(), question.SubmitInput{
		Body:    req.Body,
		TeamID:  req.TeamID,
		ActorID: GetUserID(r.Context()),
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, q)
}

// ListQuestions returns published questions, filterable by team and status.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	filter := question.ListFilter{
		TeamID: r.URL.Query().Get("team_id"),
		Status: question.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	questions, err := h.questionService.List(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// GetQuestion returns one question
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questionService.Get(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// AnswerQuestionRequest carries the response text
type AnswerQuestionRequest struct {
	Answer string `json:"answer"`
}

// AnswerQuestion moves an OPEN question to ANSWERED
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req AnswerQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := h.questionService.Answer(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()), req.Answer)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// UpvoteQuestion records one upvote for the acting user
func (h *Handler) UpvoteQuestion(w http.ResponseWriter, r *http.Request) {
	err := h.questionService.Upvote(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "upvoted"})
}

// PinQuestion pins a question
func (h *Handler) PinQuestion(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

// UnpinQuestion unpins a question
func (h *Handler) UnpinQuestion(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *Handler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	q, err := h.questionService.SetPinned(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()), pinned)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// FreezeQuestion freezes a question against further interaction
func (h *Handler) FreezeQuestion(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

// UnfreezeQuestion lifts a freeze
func (h *Handler) UnfreezeQuestion(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *Handler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	q, err := h.questionService.SetFrozen(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()), frozen)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// ModerationQueue lists held questions for human review
func (h *Handler) ModerationQueue(w http.ResponseWriter, r *http.Request) {
	filter := question.ListFilter{
		TeamID:     r.URL.Query().Get("team_id"),
		Confidence: moderation.Confidence(r.URL.Query().Get("confidence")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	queue, err := h.questionService.ReviewQueue(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

// ApproveQuestion releases a held question
func (h *Handler) ApproveQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questionService.Approve(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// RejectQuestionRequest carries the reviewer's reason
type RejectQuestionRequest struct {
	Reason string `json:"reason"`
}

// RejectQuestion permanently removes a held question
func (h *Handler) RejectQuestion(w http.ResponseWriter, r *http.Request) {
	var req RejectQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.questionService.Reject(r.Context(), chi.URLParam(r, "questionID"), GetUserID(r.Context()), req.Reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
