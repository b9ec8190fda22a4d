// Package api serves the blob service over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"blobstore/internal/blob"
	"blobstore/internal/core"
)

const storePrefix = "/store"

// Handler maps /store requests onto the blob service.
type Handler struct {
	svc *core.Service
	log *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *core.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, log: log}
}

// routePath resolves the blob path from either the {location} or the wildcard
// route. chi matches on the escaped path when the URL carries one.
func routePath(r *http.Request) (blob.Path, error) {
	var p blob.Path
	if loc := chi.URLParam(r, "location"); loc != "" {
		p = blob.P(loc)
	} else {
		p = blob.ParsePath(chi.URLParam(r, "*"))
	}
	if r.URL.RawPath == "" {
		return p, nil
	}
	for i, seg := range p {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return nil, blob.E(blob.KindInvalidArgument, "route", "invalid path escape", err)
		}
		p[i] = dec
	}
	return p, nil
}

// HandleList handles GET /store.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	blobs, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toWireList(blobs))
}

// HandleGet handles GET /store/{location}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	path, err := routePath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.Get(r.Context(), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toWire(b))
}

// HandleCreate handles POST /store/{location}. An existing blob yields 409.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	path, err := routePath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := decodeBlob(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.Create(r.Context(), in, path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toWire(b))
}

// HandleUpdate handles PUT /store/{location}. A missing blob yields 404.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	path, err := routePath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := decodeBlob(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.Update(r.Context(), in, path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toWire(b))
}

// HandleDelete handles DELETE /store/{location}. A missing blob yields 404.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	path, err := routePath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), path); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch blob.KindOf(err) {
	case blob.KindNotFound:
		return http.StatusNotFound
	case blob.KindInvalidArgument:
		return http.StatusBadRequest
	case blob.KindConflict:
		return http.StatusConflict
	case blob.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "err", err)
	}
}
