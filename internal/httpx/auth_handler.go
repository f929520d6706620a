package httpx

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pawzr/marketplace/internal/auth"
)

type UserStore interface {
	Register(ctx context.Context, name, email, password string, role auth.Role) (auth.User, error)
	Authenticate(ctx context.Context, email, password string) (auth.User, error)
	Get(ctx context.Context, id string) (auth.User, error)
}

type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

type AuthHandler struct {
	Users  UserStore
	Tokens TokenIssuer
}

type registerReq struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResp struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Get("/auth/me", h.me)
}

func (req registerReq) validate() error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return badRequest("name is required")
	case req.Email == "":
		return badRequest("email is required")
	case len(req.Password) < auth.MinPasswordLen:
		return badRequest("password must be at least 8 characters")
	case !auth.CanSelfRegister(req.Role):
		return badRequest("invalid role")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return badRequest("invalid email")
	}
	return nil
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleOwner
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Register(ctx, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusCreated, u)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, u)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, code int, u auth.User) {
	tok, err := h.Tokens.Issue(u.Identity())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, sessionResp{Token: tok, User: u})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Users.Get(ctx, id.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
