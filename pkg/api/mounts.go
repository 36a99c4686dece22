package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/driftfs/pkg/config"
	"github.com/marmos91/driftfs/pkg/mount"
)

// mountsHandler serves the mount management endpoints.
type mountsHandler struct {
	controller Controller
}

func newMountsHandler(controller Controller) *mountsHandler {
	return &mountsHandler{controller: controller}
}

// mountRequest is the body accepted by POST /api/v1/mounts.
type mountRequest struct {
	Path  string             `json:"path"`
	Store config.StoreConfig `json:"store"`
}

// unmountRequest is the body accepted by DELETE /api/v1/mounts.
type unmountRequest struct {
	Path string `json:"path"`
}

func (h *mountsHandler) status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.controller.Status()))
}

func (h *mountsHandler) list(w http.ResponseWriter, _ *http.Request) {
	mounts := h.controller.ListMounts()
	JSON(w, http.StatusOK, OKResponse(map[string]interface{}{
		"mounts": mounts,
		"count":  len(mounts),
	}))
}

func (h *mountsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("invalid request body: "+err.Error()))
		return
	}
	if req.Path == "" {
		JSON(w, http.StatusBadRequest, ErrorResponse("path is required"))
		return
	}

	mountCfg := config.MountConfig{Path: req.Path, Store: req.Store}
	if err := h.controller.Mount(r.Context(), mountCfg); err != nil {
		JSON(w, statusForMountError(err), ErrorResponse(err.Error()))
		return
	}

	JSON(w, http.StatusCreated, OKResponse(map[string]string{"path": req.Path}))
}

func (h *mountsHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req unmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("invalid request body: "+err.Error()))
		return
	}
	if req.Path == "" {
		JSON(w, http.StatusBadRequest, ErrorResponse("path is required"))
		return
	}

	if err := h.controller.Unmount(r.Context(), req.Path); err != nil {
		JSON(w, statusForMountError(err), ErrorResponse(err.Error()))
		return
	}

	JSON(w, http.StatusOK, OKResponse(map[string]string{"path": req.Path}))
}

// statusForMountError maps registry sentinel errors to HTTP status codes.
func statusForMountError(err error) int {
	switch {
	case errors.Is(err, mount.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mount.ErrAlreadyMounted), errors.Is(err, mount.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
