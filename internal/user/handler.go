package user

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type searchResult struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"fullname"`
	AvatarURL   string `json:"avatar,omitempty"`
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	res := make([]searchResult, 0, len(users))
	for i := range users {
		u := &users[i]
		res = append(res, searchResult{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName(),
			AvatarURL:   u.AvatarURL,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
