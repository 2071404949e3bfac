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
	"fmt"
	"net/http"
	"time"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/authz"
)

// QueryAuditLog returns audit records within the bound tenant, newest first.
func (h *Handler) QueryAuditLog(w http.ResponseWriter, r *http.Request) {
	if _, err := h.checkPermission(r, authz.PermAuditView, ""); err != nil {
		respondDomainError(w, r, err)
		return
	}

	filter, err := auditFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.auditService.Query(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	total, err := h.auditService.Count(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

// ExportAuditLog streams matching audit records as JSON or CSV.
func (h *Handler) ExportAuditLog(w http.ResponseWriter, r *http.Request) {
	if _, err := h.checkPermission(r, authz.PermAuditView, ""); err != nil {
		respondDomainError(w, r, err)
		return
	}

	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}

	filter, err := auditFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.auditService.Query(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	data, err := audit.Export(records, format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	filter := audit.Filter{
		UserID:       r.URL.Query().Get("user_id"),
		Action:       r.URL.Query().Get("action"),
		ActionPrefix: r.URL.Query().Get("action_prefix"),
		EntityType:   r.URL.Query().Get("entity_type"),
		EntityID:     r.URL.Query().Get("entity_id"),
		Limit:        queryInt(r, "limit", 100),
		Offset:       queryInt(r, "offset", 0),
	}

	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v := r.URL.Query().Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return audit.Filter{}, fmt.Errorf("invalid %s timestamp: must be RFC 3339", key)
			}
			*dst = &t
		}
	}

	return filter, nil
}
