package handler

import (
	"net/http"

	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type revokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// ListOwn lists the caller's active sessions and flags the one in use.
func (h *SessionHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor := reqctx.MustFrom(r.Context())
	views, err := h.sessions.ListActiveSessions(r.Context(), actor.UserID, actor.SessionID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, views)
}

func (h *SessionHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	listing, err := h.sessions.ListForUser(r.Context(), userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, listing)
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, nil)
}

func (h *SessionHandler) RevokeAllForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	n, err := h.sessions.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, revokeAllResponse{Revoked: n})
}
