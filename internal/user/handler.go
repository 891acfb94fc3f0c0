package user

import (
	"net/http"
	"strings"

	"samples-backend/internal/apperr"
	"samples-backend/internal/auth"
	"samples-backend/internal/httpx"
	"samples-backend/internal/media"
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

type profileForm struct {
	FullName string `form:"fullName" validate:"max=100"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Me(r.Context(), caller)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "User profile retrieved", profile)
}

func (h *Handler) ByUsername(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.ByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "User found", profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	if err := media.ParseForm(w, r, h.maxUploadBytes); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	form := profileForm{FullName: strings.TrimSpace(r.FormValue("fullName"))}
	if err := httpx.Validate(form); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	img, err := media.ReadImage(r, "profileImage", h.maxUploadBytes)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), caller, form.FullName, img)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Profile updated successfully", profile)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var body changePasswordRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), caller, body.CurrentPassword, body.NewPassword); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Password updated successfully", nil)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), caller); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	caller, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperr.Unauthorized(auth.MsgAuthenticationRequired))
	}
	return caller, ok
}
