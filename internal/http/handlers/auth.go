package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/model"
)

// AuthHandler handles the account endpoints
type AuthHandler struct {
	accounts *auth.AccountService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *auth.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// registerRequest is the request body for POST /register
type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,strongpassword,maxbytes=72"`
	FirstName string `json:"firstName" validate:"required,max=255"`
	LastName  string `json:"lastName" validate:"required,max=255"`
}

func (r *registerRequest) normalize() {
	r.Email = model.NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// loginRequest is the request body for POST /login
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) normalize() {
	r.Email = model.NormalizeEmail(r.Email)
}

// verifyOTPRequest is the request body for POST /otp/verify
type verifyOTPRequest struct {
	Code string `json:"code" validate:"required,numeric,max=10"`
}

func (r *verifyOTPRequest) normalize() {
	r.Code = strings.TrimSpace(r.Code)
}

// HandleRegister handles POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if msgs := decode(w, r, &req); len(msgs) > 0 {
		respondWithError(w, http.StatusBadRequest, msgs...)
		return
	}

	writeResult(w, h.accounts.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}))
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if msgs := decode(w, r, &req); len(msgs) > 0 {
		respondWithError(w, http.StatusBadRequest, msgs...)
		return
	}

	writeResult(w, h.accounts.Login(r.Context(), req.Email, req.Password))
}

// HandleGetProfile handles GET /users/{id}
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.GetProfile(r.Context(), chi.URLParam(r, "id")))
}

// HandleDeleteUser handles DELETE /users/{id}
func (h *AuthHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.DeleteUser(r.Context(), chi.URLParam(r, "id")))
}

// HandleRequestOTP handles POST /otp/request
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.MsgUnauthorized)
		return
	}
	writeResult(w, h.accounts.RequestOTP(r.Context(), user))
}

// HandleVerifyOTP handles POST /otp/verify
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.MsgUnauthorized)
		return
	}

	var req verifyOTPRequest
	if msgs := decode(w, r, &req); len(msgs) > 0 {
		respondWithError(w, http.StatusBadRequest, msgs...)
		return
	}
	writeResult(w, h.accounts.VerifyOTP(r.Context(), user, req.Code))
}
