package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
)

const maxRequestBody = maxSourceLength + 1

// Handler serves the document and mapping API of one index.
type Handler struct {
	submitter *Submitter
	mappings  *mapping.Service
	logger    *slog.Logger
}

func NewHandler(submitter *Submitter, mappings *mapping.Service) *Handler {
	return &Handler{
		submitter: submitter,
		mappings:  mappings,
		logger:    logger.WithComponent("ingest-handler"),
	}
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /documents/{type}", h.Ingest)
	mux.HandleFunc("PUT /documents/{type}/{id}", h.Ingest)
	mux.HandleFunc("GET /documents/{type}/{id}", h.GetStatus)
	mux.HandleFunc("GET /mappings", h.ListMappings)
	mux.HandleFunc("GET /mappings/{type}", h.GetMapping)
	mux.HandleFunc("PUT /mappings/{type}", h.PutMapping)
}

// Ingest accepts one document for asynchronous indexing. The body is the
// document itself; YAML is selected by ?format=yaml or a YAML content type.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	if len(body) > maxSourceLength {
		h.writeAppError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "document exceeds 10 MiB"))
		return
	}
	ev := IngestEvent{
		Type:   r.PathValue("type"),
		ID:     r.PathValue("id"),
		Format: requestFormat(r),
	}
	if ev.Format == "yaml" {
		ev.Source, _ = json.Marshal(string(body))
	} else {
		if !json.Valid(body) {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		ev.Source = body
	}

	resp, err := h.submitter.Submit(ctx, ev)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document accepted",
		"type", resp.Type,
		"doc_id", resp.ID,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func requestFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.ToLower(f)
	}
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") {
		return "yaml"
	}
	return "json"
}

// GetStatus reports the processing state of a submitted document.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.submitter.status == nil {
		h.writeError(w, http.StatusNotImplemented, "document status is not tracked")
		return
	}
	uid := mapper.UID(r.PathValue("type"), r.PathValue("id"))
	st, err := h.submitter.status.Lookup(r.Context(), h.mappings.IndexName(), uid)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index": h.mappings.IndexName(),
		"types": h.mappings.Types(),
	})
}

// GetMapping returns the installed mapping of a type with its version.
func (h *Handler) GetMapping(w http.ResponseWriter, r *http.Request) {
	dm, err := h.mappings.DocumentMapper(r.Context(), r.PathValue("type"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"type":    dm.Type(),
		"version": dm.Version(),
		"mapping": dm.Mapping(),
	})
}

// PutMapping creates a type or merges the definition into its mapping.
func (h *Handler) PutMapping(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	dm, err := h.mappings.PutMapping(r.Context(), r.PathValue("type"), body)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"type":         dm.Type(),
		"version":      dm.Version(),
		"acknowledged": true,
	})
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "error", err)
		h.writeError(w, statusCode, "internal error")
		return
	}
	h.writeError(w, statusCode, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
