package boundary

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"deltagate/internal/dataset"
	"deltagate/internal/domain"
	"deltagate/internal/inference"
	"deltagate/internal/training"
	"deltagate/pkg/status"
)

// Version is the ABI version reported across the boundary. The string
// itself is allocated once and owned by the core for the process lifetime.
const Version = "1.0.0"

// API is the complete surface exposed through the C shims. Inputs are
// validated here, before any domain logic; outputs are registered in the
// ownership table so callers can free them exactly once.
type API struct {
	strings  *Strings
	version  Handle
	datasets *dataset.Service
	trainer  *training.Service
	infer    *inference.Service
}

func NewAPI(strings *Strings, datasets *dataset.Service, trainer *training.Service, infer *inference.Service) *API {
	return &API{
		strings:  strings,
		version:  strings.AllocStatic(Version),
		datasets: datasets,
		trainer:  trainer,
		infer:    infer,
	}
}

// APIVersion returns the static version handle. The same handle every call;
// it is never released.
func (a *API) APIVersion() Handle {
	return a.version
}

// Release frees an owned output string exactly once.
func (a *API) Release(h Handle) bool {
	return a.strings.Release(h)
}

// Get resolves a handle for callers on the Go side of the boundary.
func (a *API) Get(h Handle) (string, bool) {
	return a.strings.Get(h)
}

// DataIngest ingests the file at path and returns the dataset ID. An empty
// schema defaults to the empty object, matching historical callers that
// never declared one.
func (a *API) DataIngest(ctx context.Context, path, schemaJSON string) (Handle, status.Code) {
	if path == "" || !utf8.ValidString(path) {
		return 0, status.CodeInvalidInput
	}
	if schemaJSON == "" {
		schemaJSON = "{}"
	}
	if !utf8.ValidString(schemaJSON) {
		return 0, status.CodeInvalidInput
	}

	d, err := a.datasets.IngestFile(ctx, path, schemaJSON)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	return a.strings.Alloc(d.ID.String()), status.CodeOk
}

// Train gates and registers a model version, returning its model ID.
func (a *API) Train(ctx context.Context, datasetID, cfgJSON string) (Handle, status.Code) {
	id, err := domain.ParseDatasetID(datasetID)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	if cfgJSON == "" || !utf8.ValidString(cfgJSON) {
		return 0, status.CodeInvalidInput
	}

	model, err := a.trainer.Train(ctx, id, cfgJSON)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	return a.strings.Alloc(model.ID.String()), status.CodeOk
}

// LoadModel activates a version for serving. Empty or "latest" version
// means the newest admitted one.
func (a *API) LoadModel(ctx context.Context, modelID, version string) status.Code {
	id, err := domain.ParseModelID(modelID)
	if err != nil {
		return status.CodeOf(err)
	}
	ver, err := domain.ParseVersionName(version)
	if err != nil {
		return status.CodeOf(err)
	}
	if _, err := a.trainer.Activate(ctx, id, ver); err != nil {
		return status.CodeOf(err)
	}
	return status.CodeOk
}

// InferWithCtx runs one gated inference. Failures still return a JSON body
// describing the error, alongside the matching code, so callers that only
// look at the body stay informed.
func (a *API) InferWithCtx(ctx context.Context, purposeID, subjectID, inputJSON string) (Handle, status.Code) {
	purpose, err := domain.ParsePurposeID(purposeID)
	if err != nil {
		return a.errorBody(err), status.CodeOf(err)
	}
	if subjectID == "" || !utf8.ValidString(subjectID) {
		err := status.Invalid("subject_missing")
		return a.errorBody(err), status.CodeInvalidInput
	}
	if inputJSON == "" || !utf8.ValidString(inputJSON) {
		err := status.Invalid("payload_missing")
		return a.errorBody(err), status.CodeInvalidInput
	}

	p, err := a.infer.Infer(ctx, inference.Request{
		Purpose:     purpose,
		SubjectID:   subjectID,
		PayloadJSON: inputJSON,
	})
	if err != nil {
		return a.errorBody(err), status.CodeOf(err)
	}
	return a.strings.Alloc(p.JSON), status.CodeOk
}

// ExportModelCard exports the card for the newest version of the model.
func (a *API) ExportModelCard(ctx context.Context, modelID string) (Handle, status.Code) {
	id, err := domain.ParseModelID(modelID)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	card, err := a.trainer.ExportModelCard(ctx, id, "")
	if err != nil {
		return 0, status.CodeOf(err)
	}
	return a.strings.Alloc(card), status.CodeOk
}

// ExportDatasheet exports the datasheet for an ingested dataset.
func (a *API) ExportDatasheet(ctx context.Context, datasetID string) (Handle, status.Code) {
	id, err := domain.ParseDatasetID(datasetID)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	sheet, err := a.datasets.ExportDatasheet(ctx, id)
	if err != nil {
		return 0, status.CodeOf(err)
	}
	return a.strings.Alloc(sheet), status.CodeOk
}

type errorBody struct {
	OK   bool   `json:"ok"`
	Code int32  `json:"code"`
	Msg  string `json:"msg"`
}

func (a *API) errorBody(err error) Handle {
	body, marshalErr := json.Marshal(errorBody{
		OK:   false,
		Code: int32(status.CodeOf(err)),
		Msg:  status.ReasonOf(err),
	})
	if marshalErr != nil {
		body = []byte(`{"ok":false}`)
	}
	return a.strings.Alloc(string(body))
}
