package api

import (
	"net/http"

	"github.com/warp/finance-engine/auth"
)

// Signup registers a user, seeds their personal group and categories, and
// returns a session.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := h.schemas.decode(r, "signup", &req); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataResponse{Data: toSessionDTO(s), Message: "account created"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.schemas.decode(r, "login", &req); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: toSessionDTO(s)})
}

func toSessionDTO(s *auth.Session) SessionDTO {
	return SessionDTO{
		Token:     s.Token.Value,
		ExpiresAt: formatTime(s.Token.ExpiresAt),
		User:      toUserDTO(s.User),
	}
}
