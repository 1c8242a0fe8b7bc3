package httptransport

import (
	"encoding/json"
	"net/http"

	"deltagate/pkg/status"
)

// writeError centralizes the status-code to HTTP mapping so every handler
// produces the same error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := status.CodeOf(err)
	httpStatus := http.StatusInternalServerError
	switch code {
	case status.CodeNoConsent, status.CodePolicyDenied:
		httpStatus = http.StatusForbidden
	case status.CodeModelMissing:
		httpStatus = http.StatusNotFound
	case status.CodeInvalidInput:
		httpStatus = http.StatusBadRequest
	}

	reason := status.ReasonOf(err)
	if code == status.CodeInternal {
		// Internal detail stays in the logs.
		reason = "internal"
	}
	writeJSON(w, httpStatus, map[string]any{
		"error": code.String(),
		"code":  int32(code),
		"msg":   reason,
	})
}

func writeJSON(w http.ResponseWriter, httpStatus int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRawJSON emits a body that is already canonical JSON.
func writeRawJSON(w http.ResponseWriter, httpStatus int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write([]byte(body))
}
