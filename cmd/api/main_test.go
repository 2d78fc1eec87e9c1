package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"caseflow/auth"
	"caseflow/cases"
	"caseflow/importer"
	"caseflow/moderation"
	"caseflow/variable"
)

type stubCaseService struct {
	record       cases.Record
	records      []cases.Record
	total        int
	enforceOwner bool
	getErr       error
	listErr      error
	createErr    error
	updateErr    error
	statusErr    error
}

func (s *stubCaseService) Create(_ context.Context, params cases.CreateParams) (cases.Record, error) {
	if s.createErr != nil {
		return cases.Record{}, s.createErr
	}
	rec := s.record
	rec.Title = params.Title
	rec.RequesterUserID = params.RequesterUserID
	return rec, nil
}

func (s *stubCaseService) Get(_ context.Context, actorID, _ string, privileged bool) (cases.Record, error) {
	if s.getErr != nil {
		return cases.Record{}, s.getErr
	}
	if s.enforceOwner && !privileged && actorID != s.record.RequesterUserID {
		return cases.Record{}, cases.ErrForbidden
	}
	return s.record, nil
}

func (s *stubCaseService) List(_ context.Context, _ cases.ListFilters) ([]cases.Record, int, error) {
	return s.records, s.total, s.listErr
}

func (s *stubCaseService) Update(_ context.Context, _, _ string, _ cases.UpdateParams) (cases.Record, error) {
	return s.record, s.updateErr
}

func (s *stubCaseService) SetStatus(_ context.Context, _, _ string, status cases.CaseStatus, _ bool) (cases.Record, error) {
	if s.statusErr != nil {
		return cases.Record{}, s.statusErr
	}
	rec := s.record
	rec.Status = status
	return rec, nil
}

type stubVariableStore struct {
	record       variable.Record
	records      []variable.Record
	events       []variable.TimelineEvent
	err          error
	updateCalled bool
}

func (s *stubVariableStore) Create(_ context.Context, _ variable.CreateParams) (variable.Record, error) {
	return s.record, s.err
}

func (s *stubVariableStore) GetByID(_ context.Context, _ string) (variable.Record, error) {
	return s.record, s.err
}

func (s *stubVariableStore) ListByCase(_ context.Context, _ string) ([]variable.Record, error) {
	return s.records, s.err
}

func (s *stubVariableStore) Update(_ context.Context, _ string, _ variable.UpdateParams) (variable.Record, error) {
	s.updateCalled = true
	return s.record, s.err
}

func (s *stubVariableStore) ListTimeline(_ context.Context, _ string) ([]variable.TimelineEvent, error) {
	return s.events, s.err
}

type stubWorkflow struct {
	record         variable.Record
	applyErr       error
	cancelErr      error
	overrideErr    error
	lastParams     variable.ApplyParams
	cancelCalled   bool
	cancelOverride bool
	overrideCalled bool
}

func (s *stubWorkflow) ApplyAction(_ context.Context, params variable.ApplyParams) (variable.Record, error) {
	s.lastParams = params
	return s.record, s.applyErr
}

func (s *stubWorkflow) Cancel(_ context.Context, _, _, _ string, override bool) (variable.Record, error) {
	s.cancelCalled = true
	s.cancelOverride = override
	return s.record, s.cancelErr
}

func (s *stubWorkflow) OverrideReject(_ context.Context, _, _, _ string) (variable.Record, error) {
	s.overrideCalled = true
	return s.record, s.overrideErr
}

type stubModerationService struct {
	record  moderation.Record
	records []moderation.Record
	err     error
}

func (s *stubModerationService) ListForRequester(_ context.Context, _, _ string) ([]moderation.Record, error) {
	return s.records, s.err
}

func (s *stubModerationService) ListPending(_ context.Context) ([]moderation.Record, error) {
	return s.records, s.err
}

func (s *stubModerationService) Create(_ context.Context, _, _, _ string) (moderation.Record, error) {
	return s.record, s.err
}

func (s *stubModerationService) Resolve(_ context.Context, _, _ string, _ moderation.Status, _ string) (moderation.Record, error) {
	return s.record, s.err
}

func authedRequest(req *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return req.WithContext(ctx)
}

func testServer() *Server {
	return &Server{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandleCreateCase_Success(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	server := testServer()
	server.caseService = &stubCaseService{
		record: cases.Record{ID: "c1", Status: cases.CaseOpen, StatusSince: now, CreatedAt: now, UpdatedAt: now},
	}

	body := strings.NewReader(`{"title":"Scoring refresh","description":"Need bureau variables"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/cases", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleCases(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp caseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title != "Scoring refresh" || resp.RequesterUserID != "u1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleCreateCase_MissingTitle(t *testing.T) {
	server := testServer()
	server.caseService = &stubCaseService{}

	body := strings.NewReader(`{"title":"  "}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/cases", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleCases(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListCases_Envelope(t *testing.T) {
	now := time.Now().UTC()
	server := testServer()
	server.caseService = &stubCaseService{
		records: []cases.Record{
			{ID: "c1", Title: "First", Status: cases.CaseOpen, StatusSince: now, CreatedAt: now, UpdatedAt: now},
		},
		total: 7,
	}

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/cases?page=1", nil), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleCases(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []caseResponse `json:"items"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 7 || payload.Items[0].ID != "c1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleCase_NotFound(t *testing.T) {
	server := testServer()
	server.caseService = &stubCaseService{getErr: cases.ErrNotFound}

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/cases/missing", nil), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleCaseDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCase_ForbiddenForStranger(t *testing.T) {
	server := testServer()
	server.caseService = &stubCaseService{getErr: cases.ErrForbidden}

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/cases/c1", nil), "intruder", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleCaseDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleVariable_PermittedActionsInPayload(t *testing.T) {
	now := time.Now().UTC()
	server := testServer()
	server.caseService = &stubCaseService{record: cases.Record{ID: "c1", RequesterUserID: "u1"}}
	server.variableStore = &stubVariableStore{
		record: variable.Record{
			ID:        "v1",
			CaseID:    "c1",
			Name:      "income_verified",
			Type:      variable.TypeBoolean,
			Priority:  variable.PriorityHigh,
			Status:    variable.StatusMatched,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/variables/v1", nil), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp variableResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := []string{"send-to-validation", "search-more"}
	if len(resp.PermittedActions) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, resp.PermittedActions)
	}
	for i, a := range want {
		if resp.PermittedActions[i] != a {
			t.Fatalf("expected actions %v, got %v", want, resp.PermittedActions)
		}
	}
	if resp.StatusLabel != "Matched" || resp.Badge != "info" {
		t.Fatalf("unexpected display metadata: %+v", resp)
	}
}

func TestHandleVariableAction_Conflict(t *testing.T) {
	server := testServer()
	server.workflowService = &stubWorkflow{applyErr: variable.ErrActionNotPermitted}

	body := strings.NewReader(`{"action":"confirm"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleVariableAction_ModeratorGetsOverride(t *testing.T) {
	server := testServer()
	wf := &stubWorkflow{record: variable.Record{ID: "v1", Status: variable.StatusRejected}}
	server.workflowService = wf

	body := strings.NewReader(`{"action":"owner-reject"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "mod-1", auth.RoleModerator)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !wf.lastParams.Override {
		t.Fatal("expected override flag for moderator actor")
	}
	if wf.lastParams.ActorID != "mod-1" {
		t.Fatalf("expected actor mod-1, got %q", wf.lastParams.ActorID)
	}
}

func TestHandleVariable_StrangerCannotPatch(t *testing.T) {
	server := testServer()
	server.caseService = &stubCaseService{
		record:       cases.Record{ID: "c1", RequesterUserID: "owner-1"},
		enforceOwner: true,
	}
	store := &stubVariableStore{record: variable.Record{ID: "v1", CaseID: "c1", Status: variable.StatusPending}}
	server.variableStore = store

	body := strings.NewReader(`{"name":"hijacked"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/api/variables/v1", body), "stranger", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if store.updateCalled {
		t.Fatal("expected store update to be skipped for a non-requester")
	}
}

func TestHandleVariable_MatchedOwnerCanRead(t *testing.T) {
	server := testServer()
	ownerID := "owner-9"
	server.caseService = &stubCaseService{
		record:       cases.Record{ID: "c1", RequesterUserID: "u1"},
		enforceOwner: true,
	}
	server.variableStore = &stubVariableStore{record: variable.Record{
		ID:          "v1",
		CaseID:      "c1",
		Status:      variable.StatusOwnerReview,
		OwnerUserID: &ownerID,
	}}

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/variables/v1", nil), ownerID, auth.RoleOwner)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleVariableAction_CancelRoutedToCancel(t *testing.T) {
	server := testServer()
	wf := &stubWorkflow{record: variable.Record{ID: "v1", Status: variable.StatusCancelled}}
	server.workflowService = wf

	body := strings.NewReader(`{"action":"cancel","note":"no longer needed"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !wf.cancelCalled {
		t.Fatal("expected cancel path to be used")
	}
	if wf.cancelOverride {
		t.Fatal("expected no override for a requester actor")
	}
}

func TestHandleVariableAction_OverrideRejectModeratorOnly(t *testing.T) {
	server := testServer()
	wf := &stubWorkflow{record: variable.Record{ID: "v1", Status: variable.StatusRejected}}
	server.workflowService = wf

	body := strings.NewReader(`{"action":"override-reject","note":"policy breach"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for requester, got %d", rec.Code)
	}
	if wf.overrideCalled {
		t.Fatal("expected override reject to be blocked for a requester")
	}

	body = strings.NewReader(`{"action":"override-reject","note":"policy breach"}`)
	req = authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "mod-1", auth.RoleModerator)
	rec = httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for moderator, got %d", rec.Code)
	}
	if !wf.overrideCalled {
		t.Fatal("expected override reject to be applied for a moderator")
	}
}

func TestHandleVariableAction_MissingAction(t *testing.T) {
	server := testServer()
	server.workflowService = &stubWorkflow{}

	body := strings.NewReader(`{}`)
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/variables/v1/actions", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleVariableDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleImportPreview_ReportsRowErrors(t *testing.T) {
	server := testServer()
	server.importService = importer.NewService(nil, nil)

	csv := "nome,produto,descricao\nspend_index,cards,average monthly card spend\nAB,cards,too short\n"
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/imports/preview", strings.NewReader(csv)), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleImportPreview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Columns    map[string]string    `json:"columns"`
		Rows       []previewRowResponse `json:"rows"`
		Importable int                  `json:"importable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Columns["nome"] != "variable_name" {
		t.Fatalf("expected nome mapped to variable_name, got %+v", payload.Columns)
	}
	if payload.Importable != 1 {
		t.Fatalf("expected 1 importable row, got %d", payload.Importable)
	}
	if len(payload.Rows) != 2 || len(payload.Rows[1].Errors) == 0 {
		t.Fatalf("expected second row to carry errors: %+v", payload.Rows)
	}
}

func TestHandleModerationResolve_RequiresModerator(t *testing.T) {
	server := testServer()
	server.moderationService = &stubModerationService{}

	body := strings.NewReader(`{"status":"approved"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/api/moderation/requests/m1", body), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleModerationDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleModerationResolve_BadOutcome(t *testing.T) {
	server := testServer()
	server.moderationService = &stubModerationService{}

	body := strings.NewReader(`{"status":"pending"}`)
	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/api/moderation/requests/m1", body), "mod-1", auth.RoleModerator)
	rec := httptest.NewRecorder()

	server.handleModerationDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAdminConfig_ForbiddenForRequester(t *testing.T) {
	server := testServer()

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/admin/config", nil), "u1", auth.RoleRequester)
	rec := httptest.NewRecorder()

	server.handleAdminConfig(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	server := testServer()
	server.authService = auth.NewService(&stubAuthRepo{}, "secret")

	handler := server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

type stubAuthRepo struct{}

func (s *stubAuthRepo) CreateUser(_ context.Context, _ auth.CreateUserParams) (auth.User, error) {
	return auth.User{}, nil
}

func (s *stubAuthRepo) GetUserByEmail(_ context.Context, _ string) (auth.User, error) {
	return auth.User{}, auth.ErrUserNotFound
}

func (s *stubAuthRepo) GetUserByID(_ context.Context, _ string) (auth.User, error) {
	return auth.User{}, auth.ErrUserNotFound
}
