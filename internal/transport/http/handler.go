// Package httptransport is the thin HTTP layer over the domain services.
// Handlers decode, delegate and encode; gating, routing and audit all
// happen below.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deltagate/internal/boundary"
	"deltagate/internal/dataset"
	"deltagate/internal/domain"
	"deltagate/internal/inference"
	"deltagate/internal/platform/middleware"
	"deltagate/internal/training"
	"deltagate/pkg/status"
)

// Handler wires the API routes to the domain services.
type Handler struct {
	logger    *slog.Logger
	datasets  *dataset.Service
	trainer   *training.Service
	infer     *inference.Service
	validator middleware.TokenValidator
}

func NewHandler(datasets *dataset.Service, trainer *training.Service, infer *inference.Service, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		datasets:  datasets,
		trainer:   trainer,
		infer:     infer,
		validator: validator,
	}
}

// Router builds the full route tree. Probes and metrics stay outside the
// auth boundary; everything under /v1 requires a bearer token.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/version", h.handleVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/datasets", h.handleIngest)
		r.Get("/datasets/{datasetID}/sheet", h.handleDatasheet)
		r.Post("/models", h.handleTrain)
		r.Post("/models/activate", h.handleActivate)
		r.Get("/models/{modelID}/card", h.handleModelCard)
		r.Post("/infer", h.handleInfer)
		r.Post("/infer/batch", h.handleInferBatch)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": boundary.Version})
}

type ingestRequest struct {
	SourcePath string          `json:"source_path"`
	Schema     json.RawMessage `json:"schema"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Invalid("request_body_unparseable"))
		return
	}
	schema := string(req.Schema)
	if schema == "" {
		schema = "{}"
	}

	d, err := h.datasets.IngestFile(r.Context(), req.SourcePath, schema)
	if err != nil {
		h.logWarn(r, "dataset ingest failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleDatasheet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDatasetID(chi.URLParam(r, "datasetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	sheet, err := h.datasets.ExportDatasheet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, sheet)
}

type trainRequest struct {
	DatasetID string          `json:"dataset_id"`
	Config    json.RawMessage `json:"config"`
}

type trainResponse struct {
	ModelID domain.ModelID     `json:"model_id"`
	Version domain.VersionName `json:"version"`
	Status  domain.ModelStatus `json:"status"`
	Passed  bool               `json:"passed"`
	Reasons []string           `json:"reasons"`
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Invalid("request_body_unparseable"))
		return
	}
	id, err := domain.ParseDatasetID(req.DatasetID)
	if err != nil {
		writeError(w, err)
		return
	}

	model, err := h.trainer.Train(r.Context(), id, string(req.Config))
	if err != nil && status.CodeOf(err) != status.CodePolicyDenied {
		h.logWarn(r, "training failed", err)
		writeError(w, err)
		return
	}

	resp := trainResponse{
		ModelID: model.ID,
		Version: model.Version,
		Status:  model.Status,
		Passed:  model.Gate.Passed,
		Reasons: model.Gate.Reasons,
	}
	// A rejected gate is reported with the full verdict, not an opaque
	// error body.
	code := http.StatusCreated
	if err != nil {
		code = http.StatusForbidden
	}
	writeJSON(w, code, resp)
}

type activateRequest struct {
	ModelID string `json:"model_id"`
	Version string `json:"version"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Invalid("request_body_unparseable"))
		return
	}
	id, err := domain.ParseModelID(req.ModelID)
	if err != nil {
		writeError(w, err)
		return
	}
	ver, err := domain.ParseVersionName(req.Version)
	if err != nil {
		writeError(w, err)
		return
	}

	model, err := h.trainer.Activate(r.Context(), id, ver)
	if err != nil {
		h.logWarn(r, "activation failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"model_id": model.ID.String(),
		"version":  model.Version.String(),
		"status":   string(model.Status),
	})
}

func (h *Handler) handleModelCard(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseModelID(chi.URLParam(r, "modelID"))
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := h.trainer.ExportModelCard(r.Context(), id, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, card)
}

type inferRequest struct {
	PurposeID string          `json:"purpose_id"`
	SubjectID string          `json:"subject_id"`
	Input     json.RawMessage `json:"input"`
}

func (h *Handler) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Invalid("request_body_unparseable"))
		return
	}
	purpose, err := domain.ParsePurposeID(req.PurposeID)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.infer.Infer(r.Context(), inference.Request{
		Purpose:     purpose,
		SubjectID:   req.SubjectID,
		PayloadJSON: string(req.Input),
	})
	if err != nil {
		h.logWarn(r, "inference refused", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type inferBatchRequest struct {
	PurposeID string            `json:"purpose_id"`
	SubjectID string            `json:"subject_id"`
	Inputs    []json.RawMessage `json:"inputs"`
}

func (h *Handler) handleInferBatch(w http.ResponseWriter, r *http.Request) {
	var req inferBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Invalid("request_body_unparseable"))
		return
	}
	purpose, err := domain.ParsePurposeID(req.PurposeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, status.Invalid("inputs_empty"))
		return
	}

	payloads := make([]string, len(req.Inputs))
	for i, in := range req.Inputs {
		payloads[i] = string(in)
	}
	results, err := h.infer.InferBatch(r.Context(), purpose, req.SubjectID, payloads)
	if err != nil {
		h.logWarn(r, "batch inference refused", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
		"caller_id", middleware.GetCallerID(r.Context()),
	)
}
