package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caseflow/auth"
	"caseflow/cases"
	"caseflow/importer"
	"caseflow/metrics"
	"caseflow/sla"
	"caseflow/variable"
)

const maxBodySize = 5 << 20

type userResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	FullName   string  `json:"fullName"`
	Department *string `json:"department,omitempty"`
	Role       string  `json:"role"`
	CreatedAt  string  `json:"createdAt"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Department: u.Department,
		Role:       string(u.Role),
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		if errors.Is(err, auth.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(&result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := actorFrom(r)
	user, err := s.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type caseResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	RequesterUserID string `json:"requesterUserId"`
	Status          string `json:"status"`
	SLALevel        string `json:"slaLevel,omitempty"`
	StatusSince     string `json:"statusSince"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func toCaseResponse(c cases.Record, slaLevel string) caseResponse {
	return caseResponse{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		RequesterUserID: c.RequesterUserID,
		Status:          string(c.Status),
		SLALevel:        slaLevel,
		StatusSince:     c.StatusSince.Format(time.RFC3339),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) slaLevelFor(r *http.Request, c cases.Record) string {
	if s.settingsStore == nil || c.Status == cases.CaseClosed {
		return ""
	}
	thresholds, err := s.settingsStore.SLAThresholds(r.Context())
	if err != nil {
		return ""
	}
	for _, t := range thresholds {
		if t.CaseStatus == string(c.Status) {
			return string(sla.Evaluate(t, c.StatusSince, time.Now()))
		}
	}
	return ""
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListCases(w, r)
	case http.MethodPost:
		s.handleCreateCase(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	userID, role := actorFrom(r)
	q := r.URL.Query()

	filters := cases.ListFilters{
		Status: cases.CaseStatus(q.Get("status")),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	// Requesters only ever see their own cases.
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin
	if !privileged || q.Get("mine") == "true" {
		filters.RequesterUserID = userID
	}

	records, total, err := s.caseService.List(r.Context(), filters)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]caseResponse, 0, len(records))
	for _, c := range records {
		items = append(items, toCaseResponse(c, s.slaLevelFor(r, c)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	userID, _ := actorFrom(r)
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	record, err := s.caseService.Create(r.Context(), cases.CreateParams{
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		RequesterUserID: userID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaseResponse(record, ""))
}

func (s *Server) handleCaseDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cases/")
	caseID, sub, _ := strings.Cut(rest, "/")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "case id required")
		return
	}

	switch sub {
	case "":
		s.handleCase(w, r, caseID)
	case "variables":
		s.handleCaseVariables(w, r, caseID)
	case "status":
		s.handleCaseStatus(w, r, caseID)
	case "tags":
		s.handleCaseTags(w, r, caseID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleCase(w http.ResponseWriter, r *http.Request, caseID string) {
	userID, role := actorFrom(r)
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin

	switch r.Method {
	case http.MethodGet:
		record, err := s.caseService.Get(r.Context(), userID, caseID, privileged)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(record, s.slaLevelFor(r, record)))
	case http.MethodPatch:
		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		record, err := s.caseService.Update(r.Context(), userID, caseID, cases.UpdateParams{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCaseResponse(record, ""))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCaseStatus(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, role := actorFrom(r)
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := cases.CaseStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid case status")
		return
	}
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin
	record, err := s.caseService.SetStatus(r.Context(), userID, caseID, status, privileged)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseResponse(record, ""))
}

func (s *Server) handleCaseTags(w http.ResponseWriter, r *http.Request, caseID string) {
	userID, role := actorFrom(r)
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin

	// Ownership check rides on the case lookup.
	if _, err := s.caseService.Get(r.Context(), userID, caseID, privileged); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tags, err := s.settingsStore.TagsForCase(r.Context(), caseID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
	case http.MethodPut:
		var req struct {
			Tags []string `json:"tags"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.settingsStore.SetCaseTags(r.Context(), caseID, req.Tags); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": req.Tags})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type variableResponse struct {
	ID               string   `json:"id"`
	CaseID           string   `json:"caseId"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Product          string   `json:"product"`
	Concept          string   `json:"concept"`
	MinHistory       string   `json:"minHistory,omitempty"`
	Priority         string   `json:"priority"`
	DesiredLag       string   `json:"desiredLag,omitempty"`
	SelectOptions    *string  `json:"selectOptions,omitempty"`
	Status           string   `json:"status"`
	StatusLabel      string   `json:"statusLabel"`
	Badge            string   `json:"badge"`
	MatchedTable     *string  `json:"matchedTable,omitempty"`
	OwnerUserID      *string  `json:"ownerUserId,omitempty"`
	PermittedActions []string `json:"permittedActions"`
	CreatedAt        string   `json:"createdAt"`
	UpdatedAt        string   `json:"updatedAt"`
}

func toVariableResponse(v variable.Record) variableResponse {
	meta := variable.Meta(v.Status)
	actions := variable.PermittedActions(v.Status)
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return variableResponse{
		ID:               v.ID,
		CaseID:           v.CaseID,
		Name:             v.Name,
		Type:             string(v.Type),
		Product:          v.Product,
		Concept:          v.Concept,
		MinHistory:       v.MinHistory,
		Priority:         string(v.Priority),
		DesiredLag:       v.DesiredLag,
		SelectOptions:    v.SelectOptions,
		Status:           string(v.Status),
		StatusLabel:      meta.Label,
		Badge:            meta.Badge,
		MatchedTable:     v.MatchedTable,
		OwnerUserID:      v.OwnerUserID,
		PermittedActions: names,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        v.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCaseVariables(w http.ResponseWriter, r *http.Request, caseID string) {
	userID, role := actorFrom(r)
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin || role == auth.RoleOwner

	if _, err := s.caseService.Get(r.Context(), userID, caseID, privileged); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records, err := s.variableStore.ListByCase(r.Context(), caseID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		items := make([]variableResponse, 0, len(records))
		for _, v := range records {
			items = append(items, toVariableResponse(v))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
	case http.MethodPost:
		s.handleCreateVariable(w, r, caseID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateVariable(w http.ResponseWriter, r *http.Request, caseID string) {
	var req struct {
		Name          string  `json:"name"`
		Type          string  `json:"type"`
		Product       string  `json:"product"`
		Concept       string  `json:"concept"`
		MinHistory    string  `json:"minHistory"`
		Priority      string  `json:"priority"`
		DesiredLag    string  `json:"desiredLag"`
		SelectOptions *string `json:"selectOptions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	row := importer.Row{
		importer.FieldName:       req.Name,
		importer.FieldType:       req.Type,
		importer.FieldProduct:    req.Product,
		importer.FieldConcept:    req.Concept,
		importer.FieldMinHistory: req.MinHistory,
		importer.FieldPriority:   req.Priority,
		importer.FieldDesiredLag: req.DesiredLag,
	}
	if req.SelectOptions != nil {
		row[importer.FieldSelectOptions] = *req.SelectOptions
	}
	row = importer.ApplyDefaults(row)
	if errs := importer.ValidateRow(row); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	record, err := s.variableStore.Create(r.Context(), row.CreateParams(caseID))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVariableResponse(record))
}

func (s *Server) handleVariableDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/variables/")
	variableID, sub, _ := strings.Cut(rest, "/")
	if variableID == "" {
		writeError(w, http.StatusBadRequest, "variable id required")
		return
	}

	switch sub {
	case "":
		s.handleVariable(w, r, variableID)
	case "actions":
		s.handleVariableAction(w, r, variableID)
	case "timeline":
		s.handleVariableTimeline(w, r, variableID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// authorizeVariable resolves the variable and applies the owning case's
// access gate: the requester always passes, moderators and admins pass,
// and for reads the matched table owner passes too.
func (s *Server) authorizeVariable(r *http.Request, variableID string, read bool) (variable.Record, error) {
	userID, role := actorFrom(r)

	record, err := s.variableStore.GetByID(r.Context(), variableID)
	if err != nil {
		return variable.Record{}, err
	}

	privileged := role == auth.RoleModerator || role == auth.RoleAdmin
	if read && record.OwnerUserID != nil && *record.OwnerUserID == userID {
		privileged = true
	}
	if _, err := s.caseService.Get(r.Context(), userID, record.CaseID, privileged); err != nil {
		return variable.Record{}, err
	}
	return record, nil
}

func (s *Server) handleVariable(w http.ResponseWriter, r *http.Request, variableID string) {
	switch r.Method {
	case http.MethodGet:
		record, err := s.authorizeVariable(r, variableID, true)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toVariableResponse(record))
	case http.MethodPatch:
		if _, err := s.authorizeVariable(r, variableID, false); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		var req struct {
			Name       *string `json:"name"`
			Concept    *string `json:"concept"`
			MinHistory *string `json:"minHistory"`
			Priority   *string `json:"priority"`
			DesiredLag *string `json:"desiredLag"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		params := variable.UpdateParams{
			Name:       req.Name,
			Concept:    req.Concept,
			MinHistory: req.MinHistory,
			DesiredLag: req.DesiredLag,
		}
		if req.Priority != nil {
			p := variable.Priority(*req.Priority)
			if !p.Valid() {
				writeError(w, http.StatusBadRequest, "invalid priority")
				return
			}
			params.Priority = &p
		}
		record, err := s.variableStore.Update(r.Context(), variableID, params)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toVariableResponse(record))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleVariableAction(w http.ResponseWriter, r *http.Request, variableID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, role := actorFrom(r)
	var req struct {
		Action       string  `json:"action"`
		MatchedTable *string `json:"matchedTable"`
		OwnerUserID  *string `json:"ownerUserId"`
		Note         string  `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	privileged := role == auth.RoleModerator || role == auth.RoleAdmin

	var (
		record variable.Record
		err    error
	)
	switch variable.Action(req.Action) {
	case variable.ActionCancel:
		record, err = s.workflowService.Cancel(r.Context(), variableID, userID, req.Note, privileged)
	case variable.ActionOverrideReject:
		if !privileged {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		record, err = s.workflowService.OverrideReject(r.Context(), variableID, userID, req.Note)
	default:
		record, err = s.workflowService.ApplyAction(r.Context(), variable.ApplyParams{
			VariableID:   variableID,
			ActorID:      userID,
			Action:       variable.Action(req.Action),
			MatchedTable: req.MatchedTable,
			OwnerUserID:  req.OwnerUserID,
			Note:         req.Note,
			Override:     privileged,
		})
	}
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
	}
	metrics.VariableTransitionsTotal.WithLabelValues(req.Action, outcome).Inc()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVariableResponse(record))
}

func (s *Server) handleVariableTimeline(w http.ResponseWriter, r *http.Request, variableID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.authorizeVariable(r, variableID, true); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	events, err := s.variableStore.ListTimeline(r.Context(), variableID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	type eventResponse struct {
		Seq       int             `json:"seq"`
		Type      string          `json:"type"`
		ActorID   *string         `json:"actorId,omitempty"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt string          `json:"createdAt"`
	}
	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, eventResponse{
			Seq:       e.Seq,
			Type:      e.Type,
			ActorID:   e.ActorID,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type previewRowResponse struct {
	Index  int               `json:"index"`
	Values map[string]string `json:"values"`
	Errors []string          `json:"errors,omitempty"`
}

func toPreviewResponse(result importer.PreviewResult) map[string]any {
	columns := make(map[string]string, len(result.Mapping.Columns))
	for header, field := range result.Mapping.Columns {
		columns[header] = string(field)
	}
	ambiguous := make(map[string][]string, len(result.Mapping.Ambiguous))
	for header, fields := range result.Mapping.Ambiguous {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, string(f))
		}
		ambiguous[header] = names
	}
	rows := make([]previewRowResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		values := make(map[string]string, len(row.Values))
		for field, v := range row.Values {
			values[string(field)] = v
		}
		rows = append(rows, previewRowResponse{Index: row.Index, Values: values, Errors: row.Errors})
	}
	return map[string]any{
		"columns":    columns,
		"ambiguous":  ambiguous,
		"rows":       rows,
		"importable": result.Importable,
	}
}

func (s *Server) readLimitedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return nil, false
	}
	if len(data) > maxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return nil, false
	}
	return data, true
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data, ok := s.readLimitedBody(w, r)
	if !ok {
		return
	}
	result, err := s.importService.Preview(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.ImportRowsTotal.WithLabelValues("valid").Add(float64(result.Importable))
	metrics.ImportRowsTotal.WithLabelValues("invalid").Add(float64(len(result.Rows) - result.Importable))
	writeJSON(w, http.StatusOK, toPreviewResponse(result))
}

func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, role := actorFrom(r)
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "caseId query parameter required")
		return
	}
	privileged := role == auth.RoleModerator || role == auth.RoleAdmin
	if _, err := s.caseService.Get(r.Context(), userID, caseID, privileged); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	data, ok := s.readLimitedBody(w, r)
	if !ok {
		return
	}
	result, err := s.importService.Preview(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := make([]importer.Row, 0, len(result.Rows))
	for _, row := range result.Rows {
		rows = append(rows, row.Values)
	}
	records, err := s.importService.Commit(r.Context(), caseID, rows)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]variableResponse, 0, len(records))
	for _, v := range records {
		items = append(items, toVariableResponse(v))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": items, "total": len(items)})
}
