// Package main builds the c-shared library exposing the delta1_* ABI. The
// shims stay deliberately thin: convert C strings, delegate to
// boundary.API, convert back. All validation and ownership accounting
// lives on the Go side where it is tested.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
	"unsafe"

	"deltagate/internal/boundary"
	"deltagate/internal/consent"
	"deltagate/internal/dataset"
	"deltagate/internal/inference"
	"deltagate/internal/ledger"
	"deltagate/internal/registry"
	"deltagate/internal/training"
	"deltagate/internal/whylog"
	"deltagate/pkg/status"
)

var (
	initOnce sync.Once
	api      *boundary.API

	// exported maps every C string we handed out to its boundary handle,
	// so delta1_free_str can enforce the exactly-once release contract.
	exportedMu sync.Mutex
	exported   = map[unsafe.Pointer]boundary.Handle{}

	// versionPtr is the one C string owned by the core. Allocated once,
	// never freed, never entered into the exported map.
	versionPtr *C.char
)

func core() *boundary.API {
	initOnce.Do(func() {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		signer, err := ledger.NewSigner()
		if err != nil {
			logger.Error("signing key generation failed", "error", err)
			// A ledger without a signer refuses to seal; construction
			// continues so the failure surfaces per call, loudly.
		}

		var store ledger.Store = ledger.NewMemoryStore()
		if dir := os.Getenv("DELTA_LEDGER_DIR"); dir != "" {
			if fs, err := ledger.NewFileStore(dir); err == nil {
				store = fs
			} else {
				logger.Error("ledger file store unavailable, using memory", "error", err)
			}
		}
		led := ledger.New(store, signer, ledger.Config{}, logger)

		models := registry.New()
		datasetStore := dataset.NewMemoryStore()
		datasets := dataset.NewService(datasetStore, led, logger)

		var artifacts training.Artifacts
		if root := os.Getenv("DELTA_DATA_ROOT"); root != "" {
			artifacts = training.NewFSArtifacts(root)
		}
		signingKey := ""
		if signer != nil {
			signingKey = signer.PublicKeyHex()
		}
		trainer := training.NewService(datasetStore, models, led, artifacts, signingKey, logger)

		checker := consent.NewChecker(consent.AllowAllOracle{}, nil, 2*time.Second, logger)
		infer := inference.NewService(checker, models,
			[]inference.Engine{inference.StubTabularEngine{}, inference.StubTextEngine{}},
			inference.NewPool(0), led, whylog.DefaultPolicy(), logger)

		api = boundary.NewAPI(boundary.NewStrings(), datasets, trainer, infer)
		versionPtr = C.CString(boundary.Version)
	})
	return api
}

func goString(p *C.char) (string, bool) {
	if p == nil {
		return "", false
	}
	return C.GoString(p), true
}

// exportString converts a handle's value to a caller-owned C string.
func exportString(a *boundary.API, h boundary.Handle) *C.char {
	value, ok := a.Get(h)
	if !ok {
		return nil
	}
	p := C.CString(value)
	exportedMu.Lock()
	exported[unsafe.Pointer(p)] = h
	exportedMu.Unlock()
	return p
}

//export delta1_api_version
func delta1_api_version() *C.char {
	core()
	return versionPtr
}

//export delta1_data_ingest
func delta1_data_ingest(filepath *C.char, outDatasetID **C.char) C.int {
	a := core()
	path, ok := goString(filepath)
	if !ok || outDatasetID == nil {
		return C.int(status.CodeInvalidInput)
	}

	h, code := a.DataIngest(context.Background(), path, "")
	if code != status.CodeOk {
		return C.int(code)
	}
	*outDatasetID = exportString(a, h)
	return C.int(status.CodeOk)
}

//export delta1_train
func delta1_train(datasetID, trainCfgJSON *C.char, outModelID **C.char) C.int {
	a := core()
	id, okID := goString(datasetID)
	cfg, okCfg := goString(trainCfgJSON)
	if !okID || !okCfg || outModelID == nil {
		return C.int(status.CodeInvalidInput)
	}

	h, code := a.Train(context.Background(), id, cfg)
	if code != status.CodeOk {
		return C.int(code)
	}
	*outModelID = exportString(a, h)
	return C.int(status.CodeOk)
}

//export delta1_load_model
func delta1_load_model(modelID, version *C.char) C.int {
	a := core()
	id, ok := goString(modelID)
	if !ok {
		return C.int(status.CodeInvalidInput)
	}
	ver, _ := goString(version) // nil version means latest

	return C.int(a.LoadModel(context.Background(), id, ver))
}

//export delta1_infer_with_ctx
func delta1_infer_with_ctx(purposeID, subjectID, inputJSON *C.char) *C.char {
	a := core()
	purpose, okP := goString(purposeID)
	subject, okS := goString(subjectID)
	input, okI := goString(inputJSON)
	if !okP || !okS || !okI {
		p := C.CString(`{"ok":false,"code":4,"msg":"ffi_null"}`)
		exportedMu.Lock()
		exported[unsafe.Pointer(p)] = 0
		exportedMu.Unlock()
		return p
	}

	h, _ := a.InferWithCtx(context.Background(), purpose, subject, input)
	return exportString(a, h)
}

//export delta1_export_model_card
func delta1_export_model_card(modelID *C.char) *C.char {
	a := core()
	id, ok := goString(modelID)
	if !ok {
		return nil
	}
	h, code := a.ExportModelCard(context.Background(), id)
	if code != status.CodeOk {
		return nil
	}
	return exportString(a, h)
}

//export delta1_export_datasheet
func delta1_export_datasheet(datasetID *C.char) *C.char {
	a := core()
	id, ok := goString(datasetID)
	if !ok {
		return nil
	}
	h, code := a.ExportDatasheet(context.Background(), id)
	if code != status.CodeOk {
		return nil
	}
	return exportString(a, h)
}

//export delta1_free_str
func delta1_free_str(p *C.char) {
	if p == nil || p == versionPtr {
		return
	}
	ptr := unsafe.Pointer(p)

	exportedMu.Lock()
	h, ok := exported[ptr]
	if ok {
		delete(exported, ptr)
	}
	exportedMu.Unlock()
	if !ok {
		// Unknown or already freed pointer. Freeing it again would
		// corrupt the allocator, so it is dropped on the floor.
		return
	}

	if h != 0 {
		core().Release(h)
	}
	C.free(ptr)
}

func main() {}
