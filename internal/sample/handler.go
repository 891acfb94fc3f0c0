package sample

import (
	"net/http"
	"strconv"
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

type createForm struct {
	Name        string `form:"name" validate:"required,min=3,max=100"`
	Description string `form:"description" validate:"max=500"`
}

type updateForm struct {
	Name        string `form:"name" validate:"omitempty,min=3,max=100"`
	Description string `form:"description" validate:"max=500"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	if err := media.ParseForm(w, r, h.maxUploadBytes); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	form := createForm{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := httpx.Validate(form); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	img, err := media.ReadImage(r, "image", h.maxUploadBytes)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), caller, CreateInput{
		Name:        form.Name,
		Description: form.Description,
		Image:       img,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, "Sample created successfully", created)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Sample found", found)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, size := httpx.Pagination(r, DefaultPageSize, MaxPageSize)

	result, err := h.service.List(r.Context(), page, size)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Samples retrieved", result)
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	samples, err := h.service.Mine(r.Context(), caller)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Your samples retrieved", samples)
}

func (h *Handler) ByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	page, size := httpx.Pagination(r, DefaultPageSize, MaxPageSize)

	result, err := h.service.ByUser(r.Context(), userID, page, size)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "User samples retrieved", result)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := media.ParseForm(w, r, h.maxUploadBytes); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	form := updateForm{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := httpx.Validate(form); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	img, err := media.ReadImage(r, "image", h.maxUploadBytes)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	in := UpdateInput{Name: form.Name, Image: img}
	if _, present := r.MultipartForm.Value["description"]; present {
		in.Description = &form.Description
	}

	updated, err := h.service.Update(r.Context(), caller, id, in)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Sample updated successfully", updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, "Sample deleted successfully", nil)
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	caller, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, apperr.Unauthorized(auth.MsgAuthenticationRequired))
	}
	return caller, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, apperr.BadRequest("Invalid "+name))
		return 0, false
	}
	return id, true
}
