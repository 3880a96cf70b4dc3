package handler

import (
	"net/http"

	"github.com/mcoot/lazysignup-go/internal/api/middleware"
	"github.com/mcoot/lazysignup-go/internal/api/request"
	"github.com/mcoot/lazysignup-go/internal/api/response"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/lazy"
)

// UserHandler handles user and signup endpoints
type UserHandler struct {
	authService *auth.Service
	lazyService *lazy.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *auth.Service, lazyService *lazy.Service) *UserHandler {
	return &UserHandler{
		authService: authService,
		lazyService: lazyService,
	}
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		// Blacklisted agents reach here without a user
		WriteError(w, NewUnauthorizedError())
		return
	}

	isLazy, err := h.lazyService.IsLazy(r.Context(), user.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user, isLazy))
}

// Convert handles POST /api/v1/users/convert
func (h *UserHandler) Convert(w http.ResponseWriter, r *http.Request) {
	user := middleware.MustGetUser(r.Context())

	var req request.ConvertRequest
	if !decode(w, r, &req) {
		return
	}

	signup, err := h.authService.NewSignup(user.ID, auth.SignupInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Email:           req.Email,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	converted, err := h.lazyService.Convert(r.Context(), user, signup)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(converted, false))
}

// Register handles POST /api/v1/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	session, user, err := h.authService.Register(r.Context(), auth.SignupInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Email:           req.Email,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session, user, false))
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session, user, false))
}

// Logout handles POST /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r.Context()); session != nil {
		h.authService.InvalidateSession(session.Token)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: "", Path: "/", MaxAge: -1})
	response.NoContent(w)
}
