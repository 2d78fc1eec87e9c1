package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caseflow/auth"
	"caseflow/catalog"
	"caseflow/moderation"
	"caseflow/notify"
	"caseflow/settings"
	"caseflow/sla"
)

type moderationResponse struct {
	ID              string  `json:"id"`
	CaseID          string  `json:"caseId"`
	RequesterUserID string  `json:"requesterUserId"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	ResolvedBy      *string `json:"resolvedBy,omitempty"`
	ResolutionNote  *string `json:"resolutionNote,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	ResolvedAt      *string `json:"resolvedAt,omitempty"`
}

func toModerationResponse(rec moderation.Record) moderationResponse {
	resp := moderationResponse{
		ID:              rec.ID,
		CaseID:          rec.CaseID,
		RequesterUserID: rec.RequesterUserID,
		Reason:          rec.Reason,
		Status:          string(rec.Status),
		ResolvedBy:      rec.ResolvedBy,
		ResolutionNote:  rec.ResolutionNote,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ResolvedAt != nil {
		v := rec.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &v
	}
	return resp
}

func (s *Server) handleModerationRequests(w http.ResponseWriter, r *http.Request) {
	userID, role := actorFrom(r)

	switch r.Method {
	case http.MethodGet:
		var (
			records []moderation.Record
			err     error
		)
		if role == auth.RoleModerator || role == auth.RoleAdmin {
			records, err = s.moderationService.ListPending(r.Context())
		} else {
			records, err = s.moderationService.ListForRequester(r.Context(), userID, r.URL.Query().Get("caseId"))
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		items := make([]moderationResponse, 0, len(records))
		for _, rec := range records {
			items = append(items, toModerationResponse(rec))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req struct {
			CaseID string `json:"caseId"`
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			writeError(w, http.StatusBadRequest, "reason is required")
			return
		}
		record, err := s.moderationService.Create(r.Context(), userID, req.CaseID, strings.TrimSpace(req.Reason))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toModerationResponse(record))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleModerationDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, role := actorFrom(r)
	if role != auth.RoleModerator && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "moderator role required")
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/api/moderation/requests/")
	if requestID == "" || strings.Contains(requestID, "/") {
		writeError(w, http.StatusBadRequest, "request id required")
		return
	}
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome := moderation.Status(req.Status)
	if outcome != moderation.StatusApproved && outcome != moderation.StatusRejected {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	record, err := s.moderationService.Resolve(r.Context(), userID, requestID, outcome, req.Note)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModerationResponse(record))
}

func (s *Server) handleCatalogTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	tables, err := s.catalogService.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]catalogTableResponse, 0, len(tables))
	for _, t := range tables {
		items = append(items, toCatalogTableResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type catalogTableResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Product     string `json:"product"`
	OwnerUserID string `json:"ownerUserId"`
	Certified   bool   `json:"certified"`
}

func toCatalogTableResponse(t catalog.Table) catalogTableResponse {
	return catalogTableResponse{
		ID:          t.ID,
		Name:        t.Name,
		Product:     t.Product,
		OwnerUserID: t.OwnerUserID,
		Certified:   t.Certified,
	}
}

// handleCatalogTableDetail looks a catalog table up by its unique name.
func (s *Server) handleCatalogTableDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/catalog/tables/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "table name required")
		return
	}
	table, err := s.catalogService.GetByName(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCatalogTableResponse(table))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := actorFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notifications, err := s.notifyStore.ListInbox(r.Context(), userID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	type notificationResponse struct {
		ID        string          `json:"id"`
		Category  string          `json:"category"`
		Topic     string          `json:"topic"`
		Payload   json.RawMessage `json:"payload"`
		Read      bool            `json:"read"`
		CreatedAt string          `json:"createdAt"`
	}
	items := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationResponse{
			ID:        n.ID,
			Category:  string(n.Category),
			Topic:     n.Topic,
			Payload:   json.RawMessage(n.Payload),
			Read:      n.ReadAt != nil,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleNotificationDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	notificationID, sub, _ := strings.Cut(rest, "/")
	if notificationID == "" || sub != "read" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := actorFrom(r)
	if err := s.notifyStore.MarkRead(r.Context(), userID, notificationID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := actorFrom(r)

	switch r.Method {
	case http.MethodGet:
		current, err := s.notifyStore.GetSettings(r.Context(), userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, current)
	case http.MethodPut:
		var req notify.Settings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.notifyStore.PutSettings(r.Context(), userID, req); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type templateResponse struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Product    string `json:"product"`
	Concept    string `json:"concept"`
	MinHistory string `json:"minHistory"`
	Priority   string `json:"priority"`
	DesiredLag string `json:"desiredLag"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	userID, _ := actorFrom(r)

	switch r.Method {
	case http.MethodGet:
		templates, err := s.settingsStore.ListTemplates(r.Context(), userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		items := make([]templateResponse, 0, len(templates))
		for _, t := range templates {
			items = append(items, templateResponse(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPut:
		var req templateResponse
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "template name is required")
			return
		}
		if err := s.settingsStore.SaveTemplate(r.Context(), userID, settings.Template(req)); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTemplateDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := actorFrom(r)
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "template name required")
		return
	}
	if err := s.settingsStore.DeleteTemplate(r.Context(), userID, name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	userID, _ := actorFrom(r)

	switch r.Method {
	case http.MethodGet:
		ids, err := s.settingsStore.ListFavorites(r.Context(), userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"caseIds": ids})
	case http.MethodPut, http.MethodDelete:
		var req struct {
			CaseID string `json:"caseId"`
		}
		if err := decodeJSON(r, &req); err != nil || req.CaseID == "" {
			writeError(w, http.StatusBadRequest, "caseId is required")
			return
		}
		var err error
		if r.Method == http.MethodPut {
			err = s.settingsStore.AddFavorite(r.Context(), userID, req.CaseID)
		} else {
			err = s.settingsStore.RemoveFavorite(r.Context(), userID, req.CaseID)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	_, role := actorFrom(r)
	if role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, err := s.adminService.Get(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)
	case http.MethodPut:
		doc, ok := s.readLimitedBody(w, r)
		if !ok {
			return
		}
		if err := s.adminService.Put(r.Context(), doc); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSLAThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		thresholds, err := s.settingsStore.SLAThresholds(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		type thresholdResponse struct {
			CaseStatus    string `json:"caseStatus"`
			WarningHours  int    `json:"warningHours"`
			CriticalHours int    `json:"criticalHours"`
		}
		items := make([]thresholdResponse, 0, len(thresholds))
		for _, t := range thresholds {
			items = append(items, thresholdResponse(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPut:
		if !s.requireAdmin(w, r) {
			return
		}
		var req struct {
			CaseStatus    string `json:"caseStatus"`
			WarningHours  int    `json:"warningHours"`
			CriticalHours int    `json:"criticalHours"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.WarningHours <= 0 && req.CriticalHours <= 0 {
			writeError(w, http.StatusBadRequest, "at least one threshold must be positive")
			return
		}
		t := sla.Threshold{
			CaseStatus:    req.CaseStatus,
			WarningHours:  req.WarningHours,
			CriticalHours: req.CriticalHours,
		}
		if err := s.settingsStore.SaveSLAThreshold(r.Context(), t); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
