// Package handler exposes the administration operations over HTTP. Handlers
// validate request shape and identity; permission checks and domain rules
// live in the admin service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"canopy/internal/admin/models"
	"canopy/internal/admin/service"
	"canopy/internal/audit"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/platform/snapshot"
	"canopy/pkg/requestcontext"
)

// Service defines the administration operations the handler depends on.
type Service interface {
	CreateUser(ctx context.Context, actor requestcontext.Actor, in service.CreateUserInput) (*models.User, error)
	GetUser(ctx context.Context, actor requestcontext.Actor, targetID string) (*models.User, error)
	ListUsers(ctx context.Context, actor requestcontext.Actor) ([]*models.User, error)
	DeleteUser(ctx context.Context, actor requestcontext.Actor, targetID string) error
	ChangeUserRole(ctx context.Context, actor requestcontext.Actor, targetID string, newRole domain.Role, reason string) (*models.User, error)
	AssignVerifierCredentials(ctx context.Context, actor requestcontext.Actor, targetID string, in service.CredentialInput) (*models.VerifierCredential, error)
	RemoveVerifierCredentials(ctx context.Context, actor requestcontext.Actor, targetID string) error
	GetAuditLogs(ctx context.Context, actor requestcontext.Actor, filter audit.Filter) ([]audit.Entry, error)
	GetSystemStats(ctx context.Context, actor requestcontext.Actor) (*service.Stats, error)
	CreateBackup(ctx context.Context, actor requestcontext.Actor) (*snapshot.Backup, error)
	RestoreFromBackup(ctx context.Context, actor requestcontext.Actor, data []byte, opts service.RestoreOptions) error
}

// Handler wires administration endpoints to the admin service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an administration handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts administration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/admin/users", h.HandleCreateUser)
	r.Get("/v1/admin/users", h.HandleListUsers)
	r.Get("/v1/admin/users/{id}", h.HandleGetUser)
	r.Delete("/v1/admin/users/{id}", h.HandleDeleteUser)
	r.Put("/v1/admin/users/{id}/role", h.HandleChangeRole)
	r.Put("/v1/admin/users/{id}/credentials", h.HandleAssignCredentials)
	r.Delete("/v1/admin/users/{id}/credentials", h.HandleRemoveCredentials)
	r.Get("/v1/admin/audit-logs", h.HandleAuditLogs)
	r.Get("/v1/admin/stats", h.HandleStats)
	r.Post("/v1/admin/backup", h.HandleBackup)
	r.Post("/v1/admin/restore", h.HandleRestore)
}

// HandleCreateUser handles POST /v1/admin/users.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.service.CreateUser(ctx, actor, req.Input())
	if err != nil {
		h.logger.ErrorContext(ctx, "user creation failed",
			"request_id", requestID,
			"email", req.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user created",
		"request_id", requestID,
		"user_id", user.ID,
		"role", user.Role,
	)
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// HandleListUsers handles GET /v1/admin/users.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	users, err := h.service.ListUsers(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	httputil.WriteJSON(w, http.StatusOK, UserListResponse{Users: users, Count: len(users)})
}

// HandleGetUser handles GET /v1/admin/users/{id}.
func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	user, err := h.service.GetUser(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleDeleteUser handles DELETE /v1/admin/users/{id}.
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	targetID := chi.URLParam(r, "id")

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.service.DeleteUser(ctx, actor, targetID); err != nil {
		h.logger.ErrorContext(ctx, "user deletion failed",
			"request_id", requestID,
			"user_id", targetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user deleted",
		"request_id", requestID,
		"user_id", targetID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangeRole handles PUT /v1/admin/users/{id}/role.
func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	targetID := chi.URLParam(r, "id")

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChangeRoleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.service.ChangeUserRole(ctx, actor, targetID, domain.Role(req.Role), req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "role change failed",
			"request_id", requestID,
			"user_id", targetID,
			"new_role", req.Role,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user role changed",
		"request_id", requestID,
		"user_id", user.ID,
		"new_role", user.Role,
	)
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleAssignCredentials handles PUT /v1/admin/users/{id}/credentials.
func (h *Handler) HandleAssignCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	targetID := chi.URLParam(r, "id")

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[AssignCredentialsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.AssignVerifierCredentials(ctx, actor, targetID, req.Input())
	if err != nil {
		h.logger.ErrorContext(ctx, "credential assignment failed",
			"request_id", requestID,
			"user_id", targetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verifier credentials assigned",
		"request_id", requestID,
		"user_id", targetID,
		"certification_id", cred.CertificationID,
	)
	httputil.WriteJSON(w, http.StatusOK, cred)
}

// HandleRemoveCredentials handles DELETE /v1/admin/users/{id}/credentials.
func (h *Handler) HandleRemoveCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	targetID := chi.URLParam(r, "id")

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.service.RemoveVerifierCredentials(ctx, actor, targetID); err != nil {
		h.logger.ErrorContext(ctx, "credential removal failed",
			"request_id", requestID,
			"user_id", targetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verifier credentials removed",
		"request_id", requestID,
		"user_id", targetID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuditLogs handles GET /v1/admin/audit-logs with optional type,
// actorId, targetId, from, to, and limit query parameters.
func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.GetAuditLogs(ctx, actor, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit log query failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, AuditLogResponse{Entries: entries, Count: len(entries)})
}

// HandleStats handles GET /v1/admin/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	stats, err := h.service.GetSystemStats(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleBackup handles POST /v1/admin/backup.
func (h *Handler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	backup, err := h.service.CreateBackup(ctx, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "backup creation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "backup created",
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, backup)
}

// HandleRestore handles POST /v1/admin/restore.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[RestoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.RestoreFromBackup(ctx, actor, req.Backup, req.Options); err != nil {
		h.logger.ErrorContext(ctx, "restore failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "data restored from backup",
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, RestoreResponse{Restored: true})
}

// auditFilterFromQuery parses audit log filters, rejecting unknown enum
// values and malformed timestamps.
func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		entryType := audit.Type(raw)
		if !entryType.Valid() {
			return filter, dErrors.New(dErrors.CodeValidation, "unknown audit entry type "+strconv.Quote(raw))
		}
		filter.Type = entryType
	}
	filter.ActorID = strings.TrimSpace(query.Get("actorId"))
	filter.TargetID = strings.TrimSpace(query.Get("targetId"))

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeValidation, "from must be an RFC 3339 timestamp")
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeValidation, "to must be an RFC 3339 timestamp")
		}
		filter.To = to
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}
