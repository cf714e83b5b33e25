package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	myMiddleware "github.com/codeWithGodstime/meetmesh/internal/middleware"
	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the conversation endpoints. Callers wrap it in the auth
// middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/conversations", h.StartConversation)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{uid}", h.GetConversation)
	r.Post("/users/{id}/dm_user", h.DirectMessage)
}

type startConversationRequest struct {
	Receiver int `json:"receiver"`
}

type directMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := currentUser(r)
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUnauthorized)
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.ErrBadRequest)
		return
	}

	conv, err := h.service.StartConversation(r.Context(), me, user.ID(req.Receiver))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Conversation Created",
		"uid":     conv.UID,
	})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	me, ok := currentUser(r)
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.service.ListConversations(r.Context(), me, limit, offset)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := currentUser(r)
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUnauthorized)
		return
	}

	detail, err := h.service.GetConversation(r.Context(), me, chi.URLParam(r, "uid"))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) DirectMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := currentUser(r)
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUnauthorized)
		return
	}

	target, ok := user.ParseID(chi.URLParam(r, "id"))
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUserNotFound)
		return
	}

	var req directMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.ErrBadRequest)
		return
	}

	if _, err := h.service.DirectMessage(r.Context(), me, target, req.Content); err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Send successfully"})
}

func currentUser(r *http.Request) (user.ID, bool) {
	id, _, ok := myMiddleware.UserFromContext(r.Context())
	return user.ID(id), ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
