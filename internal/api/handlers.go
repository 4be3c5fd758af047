package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uberfix/internal/config"
	"uberfix/internal/domain"
	"uberfix/internal/workflow"
)

type requestStore interface {
	CreateRequest(ctx context.Context, req domain.MaintenanceRequest) error
	GetRequest(ctx context.Context, requestID string) (domain.MaintenanceRequest, error)
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.MaintenanceRequest, error)
	ListStageEvents(ctx context.Context, requestID string) ([]domain.StageEvent, error)
	CountByStage(ctx context.Context) ([]domain.StageCount, error)
	SaveAttachment(ctx context.Context, att domain.Attachment) (domain.Attachment, error)
	ListAttachments(ctx context.Context, requestID string) ([]domain.Attachment, error)
	ListNotifications(ctx context.Context, requestID string) ([]domain.Notification, error)
}

type attachmentBlobStore interface {
	PutAttachment(ctx context.Context, requestID, filename, contentType string, content []byte) (string, error)
	GetAttachment(ctx context.Context, objectKey string) ([]byte, error)
}

type transitioner interface {
	Transition(ctx context.Context, in workflow.TransitionRequest) (workflow.TransitionResult, error)
}

type attachmentMetrics interface {
	RecordAttachment(source string)
}

type Handler struct {
	cfg     config.Config
	store   requestStore
	blob    attachmentBlobStore
	mutator transitioner
	metrics attachmentMetrics
	logger  *zap.Logger
	newID   func() string
	clock   func() time.Time
}

type HandlerOption func(*Handler)

func WithBlobStore(blob attachmentBlobStore) HandlerOption {
	return func(h *Handler) { h.blob = blob }
}

func WithMetrics(m attachmentMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

func NewHandler(cfg config.Config, store requestStore, mutator transitioner, opts ...HandlerOption) *Handler {
	h := &Handler{
		cfg:     cfg,
		store:   store,
		mutator: mutator,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	OK          bool     `json:"ok"`
	Message     string   `json:"message"`
	FailedRules []string `json:"failed_rules,omitempty"`
}

type stagesResponse struct {
	Stages    []domain.StageDefinition `json:"stages"`
	HappyPath []domain.WorkflowStage   `json:"happy_path"`
}

type requestResponse struct {
	Request  domain.MaintenanceRequest `json:"request"`
	Progress domain.Projection         `json:"progress"`
}

type transitionBody struct {
	Stage string `json:"stage"`
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note,omitempty"`
}

type transitionResponse struct {
	OK bool `json:"ok"`
	workflow.TransitionResult
}

func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stagesResponse{Stages: domain.Stages(), HappyPath: domain.HappyPath()})
}

// GetStage answers for unknown keys too, with the fallback definition.
func (h *Handler) GetStage(w http.ResponseWriter, r *http.Request, stage string) {
	writeJSON(w, http.StatusOK, domain.Lookup(stage))
}

func (h *Handler) GetStageProgress(w http.ResponseWriter, r *http.Request, stage string) {
	writeJSON(w, http.StatusOK, domain.Project(stage))
}

func (h *Handler) StageStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.CountByStage(ctx)
	if err != nil {
		h.logger.Error("count requests by stage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in domain.NewRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	result := domain.ValidateNewRequest(in)
	if !domain.ValidationPassed(result) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "validation failed", FailedRules: result.FailedRules})
		return
	}

	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	stage := domain.NormalizeStage(string(in.Stage))
	now := h.clock().UTC()
	req := domain.MaintenanceRequest{
		ID:            h.newID(),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: domain.NormalizePhone(in.CustomerPhone),
		Location:      in.Location,
		Priority:      priority,
		WorkflowStage: stage,
		Status:        domain.LegacyStatusFor(stage),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.store.CreateRequest(ctx, req); err != nil {
		h.logger.Error("create request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create request")
		return
	}

	writeJSON(w, http.StatusCreated, requestResponse{Request: req, Progress: domain.Project(string(stage))})
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	var filter domain.RequestFilter
	for _, raw := range splitQuery(q["stage"]) {
		if !domain.IsKnownStage(raw) {
			writeError(w, http.StatusBadRequest, "unknown stage "+strconv.Quote(raw))
			return
		}
		filter.Stages = append(filter.Stages, domain.NormalizeStage(raw))
	}
	for _, raw := range splitQuery(q["status"]) {
		filter.Statuses = append(filter.Statuses, domain.LegacyStatus(raw))
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	items, err := h.store.ListRequests(ctx, filter)
	if err != nil {
		h.logger.Error("list requests", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	req, ok := h.loadRequest(ctx, w, requestID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, requestResponse{Request: req, Progress: domain.Project(string(req.WorkflowStage))})
}

func (h *Handler) GetRequestProgress(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	req, ok := h.loadRequest(ctx, w, requestID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domain.Project(string(req.WorkflowStage)))
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var body transitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.mutator.Transition(ctx, workflow.TransitionRequest{
		RequestID: requestID,
		Target:    body.Stage,
		Actor:     body.Actor,
		Note:      body.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrUnknownStage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, workflow.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, workflow.ErrIllegalTransition), errors.Is(err, workflow.ErrStageConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("transition request", zap.String("request_id", requestID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{OK: true, TransitionResult: res})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.loadRequest(ctx, w, requestID); !ok {
		return
	}
	items, err := h.store.ListStageEvents(ctx, requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.loadRequest(ctx, w, requestID); !ok {
		return
	}
	items, err := h.store.ListNotifications(ctx, requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.loadRequest(ctx, w, requestID); !ok {
		return
	}
	items, err := h.store.ListAttachments(ctx, requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch attachments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request, requestID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if h.blob == nil {
		writeError(w, http.StatusServiceUnavailable, "attachment storage is not configured")
		return
	}
	if _, ok := h.loadRequest(ctx, w, requestID); !ok {
		return
	}

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file form field is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeError(w, http.StatusBadRequest, "file exceeds size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
			contentType = byExt
		}
	}

	objectKey, err := h.blob.PutAttachment(ctx, requestID, header.Filename, contentType, body)
	if err != nil {
		h.logger.Error("upload attachment", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	att := domain.Attachment{
		ID:          h.newID(),
		RequestID:   requestID,
		ObjectKey:   objectKey,
		Filename:    strings.TrimPrefix(objectKey, requestID+"/"),
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		CreatedAt:   h.clock().UTC(),
	}
	// Re-uploading a filename overwrites the object; the stored row keeps its
	// id, so answer with what the store holds rather than att.
	stored, err := h.store.SaveAttachment(ctx, att)
	if err != nil {
		h.logger.Error("record attachment", zap.String("object_key", objectKey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record upload")
		return
	}
	if h.metrics != nil {
		h.metrics.RecordAttachment("upload")
	}

	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request, requestID, attachmentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if h.blob == nil {
		writeError(w, http.StatusServiceUnavailable, "attachment storage is not configured")
		return
	}
	if _, ok := h.loadRequest(ctx, w, requestID); !ok {
		return
	}
	items, err := h.store.ListAttachments(ctx, requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch attachments")
		return
	}
	var att *domain.Attachment
	for i := range items {
		if items[i].ID == attachmentID {
			att = &items[i]
			break
		}
	}
	if att == nil {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}

	body, err := h.blob.GetAttachment(ctx, att.ObjectKey)
	if err != nil {
		h.logger.Error("download attachment", zap.String("object_key", att.ObjectKey), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read attachment")
		return
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) loadRequest(ctx context.Context, w http.ResponseWriter, requestID string) (domain.MaintenanceRequest, bool) {
	req, err := h.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "request not found")
			return domain.MaintenanceRequest{}, false
		}
		h.logger.Error("load request", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch request")
		return domain.MaintenanceRequest{}, false
	}
	return req, true
}

// splitQuery accepts both repeated parameters and comma separated values.
func splitQuery(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{OK: false, Message: message})
}
