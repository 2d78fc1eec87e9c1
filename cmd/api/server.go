package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"caseflow/admin"
	"caseflow/auth"
	"caseflow/cases"
	"caseflow/catalog"
	"caseflow/importer"
	"caseflow/metrics"
	"caseflow/moderation"
	"caseflow/notify"
	"caseflow/settings"
	"caseflow/sla"
	"caseflow/variable"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(tokenString string) (string, auth.Role, error)
}

type caseService interface {
	Create(ctx context.Context, params cases.CreateParams) (cases.Record, error)
	Get(ctx context.Context, actorID, caseID string, privileged bool) (cases.Record, error)
	List(ctx context.Context, filters cases.ListFilters) ([]cases.Record, int, error)
	Update(ctx context.Context, actorID, caseID string, params cases.UpdateParams) (cases.Record, error)
	SetStatus(ctx context.Context, actorID, caseID string, status cases.CaseStatus, privileged bool) (cases.Record, error)
}

type variableStore interface {
	Create(ctx context.Context, params variable.CreateParams) (variable.Record, error)
	GetByID(ctx context.Context, id string) (variable.Record, error)
	ListByCase(ctx context.Context, caseID string) ([]variable.Record, error)
	Update(ctx context.Context, id string, params variable.UpdateParams) (variable.Record, error)
	ListTimeline(ctx context.Context, variableID string) ([]variable.TimelineEvent, error)
}

type workflowService interface {
	ApplyAction(ctx context.Context, params variable.ApplyParams) (variable.Record, error)
	Cancel(ctx context.Context, variableID, actorID, note string, override bool) (variable.Record, error)
	OverrideReject(ctx context.Context, variableID, moderatorID, reason string) (variable.Record, error)
}

type importService interface {
	Preview(data []byte) (importer.PreviewResult, error)
	Commit(ctx context.Context, caseID string, rows []importer.Row) ([]variable.Record, error)
}

type moderationService interface {
	ListForRequester(ctx context.Context, requesterID, caseID string) ([]moderation.Record, error)
	ListPending(ctx context.Context) ([]moderation.Record, error)
	Create(ctx context.Context, requesterID, caseID, reason string) (moderation.Record, error)
	Resolve(ctx context.Context, moderatorID, requestID string, outcome moderation.Status, note string) (moderation.Record, error)
}

type catalogService interface {
	GetByName(ctx context.Context, name string) (catalog.Table, error)
	Search(ctx context.Context, term string, limit int) ([]catalog.Table, error)
}

type notifyStore interface {
	GetSettings(ctx context.Context, userID string) (notify.Settings, error)
	PutSettings(ctx context.Context, userID string, settings notify.Settings) error
	ListInbox(ctx context.Context, userID string, limit int) ([]notify.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type adminService interface {
	Get(ctx context.Context) (json.RawMessage, error)
	Put(ctx context.Context, doc []byte) error
}

type settingsStore interface {
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, caseID string) error
	RemoveFavorite(ctx context.Context, userID, caseID string) error
	TagsForCase(ctx context.Context, caseID string) ([]string, error)
	SetCaseTags(ctx context.Context, caseID string, tags []string) error
	ListTemplates(ctx context.Context, userID string) ([]settings.Template, error)
	SaveTemplate(ctx context.Context, userID string, tpl settings.Template) error
	DeleteTemplate(ctx context.Context, userID, name string) error
	SLAThresholds(ctx context.Context) ([]sla.Threshold, error)
	SaveSLAThreshold(ctx context.Context, t sla.Threshold) error
}

// Server holds the HTTP handlers and the services they delegate to.
type Server struct {
	authService       authService
	caseService       caseService
	variableStore     variableStore
	workflowService   workflowService
	importService     importService
	moderationService moderationService
	catalogService    catalogService
	notifyStore       notifyStore
	adminService      adminService
	settingsStore     settingsStore
	logger            *slog.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/auth/register", metrics.Middleware("/api/auth/register", http.HandlerFunc(s.handleRegister)))
	mux.Handle("/api/auth/login", metrics.Middleware("/api/auth/login", http.HandlerFunc(s.handleLogin)))
	mux.Handle("/api/auth/me", metrics.Middleware("/api/auth/me", s.requireAuth(s.handleMe)))

	mux.Handle("/api/cases", metrics.Middleware("/api/cases", s.requireAuth(s.handleCases)))
	mux.Handle("/api/cases/", metrics.Middleware("/api/cases/{id}", s.requireAuth(s.handleCaseDetail)))

	mux.Handle("/api/variables/", metrics.Middleware("/api/variables/{id}", s.requireAuth(s.handleVariableDetail)))

	mux.Handle("/api/imports/preview", metrics.Middleware("/api/imports/preview", s.requireAuth(s.handleImportPreview)))
	mux.Handle("/api/imports/commit", metrics.Middleware("/api/imports/commit", s.requireAuth(s.handleImportCommit)))

	mux.Handle("/api/moderation/requests", metrics.Middleware("/api/moderation/requests", s.requireAuth(s.handleModerationRequests)))
	mux.Handle("/api/moderation/requests/", metrics.Middleware("/api/moderation/requests/{id}", s.requireAuth(s.handleModerationDetail)))

	mux.Handle("/api/catalog/tables", metrics.Middleware("/api/catalog/tables", s.requireAuth(s.handleCatalogTables)))
	mux.Handle("/api/catalog/tables/", metrics.Middleware("/api/catalog/tables/{name}", s.requireAuth(s.handleCatalogTableDetail)))

	mux.Handle("/api/notifications", metrics.Middleware("/api/notifications", s.requireAuth(s.handleNotifications)))
	mux.Handle("/api/notifications/settings", metrics.Middleware("/api/notifications/settings", s.requireAuth(s.handleNotificationSettings)))
	mux.Handle("/api/notifications/", metrics.Middleware("/api/notifications/{id}", s.requireAuth(s.handleNotificationDetail)))

	mux.Handle("/api/templates", metrics.Middleware("/api/templates", s.requireAuth(s.handleTemplates)))
	mux.Handle("/api/templates/", metrics.Middleware("/api/templates/{name}", s.requireAuth(s.handleTemplateDetail)))
	mux.Handle("/api/favorites", metrics.Middleware("/api/favorites", s.requireAuth(s.handleFavorites)))

	mux.Handle("/api/admin/config", metrics.Middleware("/api/admin/config", s.requireAuth(s.handleAdminConfig)))
	mux.Handle("/api/admin/sla-thresholds", metrics.Middleware("/api/admin/sla-thresholds", s.requireAuth(s.handleSLAThresholds)))

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	return mux
}

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) (string, auth.Role) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return userID, role
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps domain sentinel errors onto HTTP status codes.
// Unknown errors become 500 with a generic body; the detail stays in logs.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cases.ErrNotFound),
		errors.Is(err, variable.ErrNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, cases.ErrForbidden),
		errors.Is(err, variable.ErrForbidden),
		errors.Is(err, moderation.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, variable.ErrActionNotPermitted):
		writeError(w, http.StatusConflict, "action not permitted in current status")
	case errors.Is(err, cases.ErrClosed),
		errors.Is(err, variable.ErrImmutable),
		errors.Is(err, moderation.ErrResolved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, variable.ErrMatchDetailsRequired),
		errors.Is(err, importer.ErrNoRows),
		errors.Is(err, importer.ErrRowsInvalid),
		errors.Is(err, admin.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
