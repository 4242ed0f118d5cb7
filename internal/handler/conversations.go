// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/capitalize-ai/conversations-api/internal/middleware"
	"github.com/capitalize-ai/conversations-api/internal/model"
	"github.com/capitalize-ai/conversations-api/internal/service"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
)

const maxBodyBytes = 1 << 20

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, _ := middleware.GetOwnerID(ctx)

	var req model.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, err := h.service.Create(ctx, ownerID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, _ := middleware.GetOwnerID(ctx)
	query := r.URL.Query()

	in := service.ListInput{
		Page:   service.DefaultPage,
		Limit:  service.DefaultLimit,
		Status: query.Get("status"),
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &in.Page}, {"limit", &in.Limit}} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeValidationError(w, p.name, "must be an integer")
			return
		}
		*p.dst = n
	}

	resp, err := h.service.List(ctx, ownerID, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, _ := middleware.GetOwnerID(ctx)

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(ctx, ownerID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PATCH and PUT /conversations/{id}. Only fields present in
// the body are changed.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, _ := middleware.GetOwnerID(ctx)

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, err := h.service.Update(ctx, ownerID, id, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, _ := middleware.GetOwnerID(ctx)

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, ownerID, id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := middleware.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeValidationError(w, "id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON object body into dst, answering 422 when the
// body is missing or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "invalid JSON body"
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			msg = "body is required"
		case errors.As(err, &maxErr):
			msg = "body is too large"
		case errors.As(err, &typeErr) && typeErr.Field != "":
			writeValidationError(w, typeErr.Field, "must be of type "+typeErr.Type.String())
			return false
		}
		writeValidationError(w, "body", msg)
		return false
	}
	return true
}
