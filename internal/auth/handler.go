package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"samples-backend/internal/httpx"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"max=100"`
}

func (b *registerRequest) Normalize() {
	b.Username = strings.TrimSpace(b.Username)
	b.Email = strings.TrimSpace(b.Email)
	b.FullName = strings.TrimSpace(b.FullName)
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

func (b *loginRequest) Normalize() {
	b.UsernameOrEmail = strings.TrimSpace(b.UsernameOrEmail)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, "User registered successfully", result)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), body.UsernameOrEmail, body.Password)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Token refreshed successfully", result)
}

// Logout answers 200 whether or not the token was known.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Logout successful", nil)
}
