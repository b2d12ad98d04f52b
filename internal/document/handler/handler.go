// Package handler exposes the document lifecycle over HTTP. Handlers validate
// request shape and identity; every domain rule lives in the service layer.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"canopy/internal/attestation"
	"canopy/internal/document/models"
	"canopy/internal/document/reconcile"
	"canopy/internal/document/service"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/email"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// maxRequestSize caps the whole multipart body: the file limit plus headroom
// for the form fields and part boundaries.
const maxRequestSize = service.MaxUploadSize + 1<<20

// Service defines the lifecycle operations the handler depends on.
type Service interface {
	RegisterUpload(ctx context.Context, in service.UploadInput) (*models.Document, error)
	Attest(ctx context.Context, documentID string, in attestation.Input) (*models.Document, error)
	RecordMinting(ctx context.Context, documentID string, in service.MintInput) (*models.Document, error)
	Reject(ctx context.Context, documentID, reason string) (*models.Document, error)
	CheckMintEligibility(ctx context.Context, documentID string) (service.Eligibility, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
}

// Lister serves the merged document view.
type Lister interface {
	Documents(ctx context.Context, filter reconcile.Filter) ([]*models.Document, error)
}

// Handler wires document endpoints to the lifecycle service and the
// reconciled list view.
type Handler struct {
	service Service
	lister  Lister
	logger  *slog.Logger
}

// New constructs a document handler with its dependencies.
func New(service Service, lister Lister, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		lister:  lister,
		logger:  logger,
	}
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/documents", h.HandleUpload)
	r.Get("/v1/documents", h.HandleList)
	r.Get("/v1/documents/{id}", h.HandleGet)
	r.Post("/v1/documents/{id}/attest", h.HandleAttest)
	r.Post("/v1/documents/{id}/mint", h.HandleMint)
	r.Post("/v1/documents/{id}/reject", h.HandleReject)
	r.Get("/v1/documents/{id}/eligibility", h.HandleEligibility)
}

// HandleUpload handles POST /v1/documents multipart uploads.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := r.ParseMultipartForm(service.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file exceeds the 10 MiB limit"))
			return
		}
		h.logger.WarnContext(ctx, "multipart form parse failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, `a file part named "file" is required`))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read uploaded file",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to read uploaded file"))
		return
	}

	quantity := int64(0)
	if raw := strings.TrimSpace(r.FormValue("quantity")); raw != "" {
		quantity, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "quantity must be a whole number"))
			return
		}
	}

	uploaderName := strings.TrimSpace(r.FormValue("uploaderName"))
	if uploaderName == "" {
		uploaderName = email.DisplayName(actor.Email)
	}

	in := service.UploadInput{
		FileName: header.Filename,
		FileSize: header.Size,
		FileMIME: fileContentType(header.Header.Get("Content-Type"), data),
		Bytes:    data,
		Metadata: models.Metadata{
			ProjectName: strings.TrimSpace(r.FormValue("projectName")),
			ProjectType: strings.TrimSpace(r.FormValue("projectType")),
			Description: strings.TrimSpace(r.FormValue("description")),
			Location:    strings.TrimSpace(r.FormValue("location")),
			Quantity:    quantity,
		},
		Uploader:     actor.Email,
		UploaderName: uploaderName,
		UploaderRole: domain.Role(actor.Role),
	}

	doc, err := h.service.RegisterUpload(ctx, in)
	if err != nil {
		h.logger.ErrorContext(ctx, "document upload failed",
			"request_id", requestID,
			"uploader", actor.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document upload accepted",
		"request_id", requestID,
		"document_id", doc.ID,
		"uploader", actor.Email,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleList handles GET /v1/documents with optional status, role, and search
// query parameters.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, ok := requestcontext.ActorFrom(ctx); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.lister.Documents(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "document list failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}

	httputil.WriteJSON(w, http.StatusOK, ListResponse{Documents: docs, Count: len(docs)})
}

// HandleGet handles GET /v1/documents/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requestcontext.ActorFrom(ctx); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	doc, err := h.service.GetDocument(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleAttest handles POST /v1/documents/{id}/attest.
func (h *Handler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[AttestRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Attest(ctx, documentID, req.Input())
	if err != nil {
		h.logger.ErrorContext(ctx, "document attestation failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document attestation accepted",
		"request_id", requestID,
		"document_id", doc.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleMint handles POST /v1/documents/{id}/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.RecordMinting(ctx, documentID, req.Input())
	if err != nil {
		h.logger.ErrorContext(ctx, "minting record failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "minting recorded",
		"request_id", requestID,
		"document_id", doc.ID,
		"tx_ref", req.TxRef,
	)
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleReject handles POST /v1/documents/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	documentID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Reject(ctx, documentID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "document rejection failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document rejected",
		"request_id", requestID,
		"document_id", doc.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleEligibility handles GET /v1/documents/{id}/eligibility.
func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requestcontext.ActorFrom(ctx); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	eligibility, err := h.service.CheckMintEligibility(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eligibility)
}

// filterFromQuery parses list filters, rejecting unknown enum values.
func filterFromQuery(r *http.Request) (reconcile.Filter, error) {
	var filter reconcile.Filter

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			return filter, dErrors.New(dErrors.CodeValidation, "unknown status "+strconv.Quote(raw))
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return filter, err
		}
		filter.Role = role
	}
	filter.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	return filter, nil
}

// fileContentType resolves the effective media type of an upload: the client's
// declared part type when present, content sniffing otherwise. Parameters such
// as charset are stripped so the result compares against the allowlist.
func fileContentType(declared string, data []byte) string {
	if declared == "" {
		declared = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return declared
	}
	return mediaType
}
