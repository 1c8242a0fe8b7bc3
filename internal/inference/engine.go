// Package inference serves predictions from the active model behind the
// consent and routing gates. Engines are pluggable; the stubs here echo
// their input so the full pipeline is exercisable without a real runtime.
package inference

import (
	"context"
	"encoding/json"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// Output is what an engine produces for one payload.
type Output struct {
	JSON        string
	Confidence  float64
	Explanation string
}

// Engine is the port a model runtime implements. Implementations must be
// safe for concurrent use; the worker pool bounds how many calls run at
// once but not which goroutine makes them.
type Engine interface {
	Target() domain.RouteTarget
	Infer(ctx context.Context, model domain.ModelVersion, payloadJSON string) (Output, error)
}

type echoResult struct {
	OK    bool            `json:"ok"`
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

func echo(model domain.ModelVersion, payloadJSON string) (string, error) {
	out, err := json.Marshal(echoResult{
		OK:    true,
		Model: model.Version.String(),
		Input: json.RawMessage(payloadJSON),
	})
	if err != nil {
		return "", status.Wrap(status.CodeInternal, "engine_encode_failed", err)
	}
	return string(out), nil
}

// StubTabularEngine echoes the payload with a flat confidence.
type StubTabularEngine struct{}

func (StubTabularEngine) Target() domain.RouteTarget { return domain.TargetTabular }

func (StubTabularEngine) Infer(_ context.Context, model domain.ModelVersion, payloadJSON string) (Output, error) {
	out, err := echo(model, payloadJSON)
	if err != nil {
		return Output{}, err
	}
	return Output{
		JSON:        out,
		Confidence:  0.5,
		Explanation: "tabular stub echo of " + model.ID.String(),
	}, nil
}

// StubTextEngine echoes the payload with a flat confidence.
type StubTextEngine struct{}

func (StubTextEngine) Target() domain.RouteTarget { return domain.TargetText }

func (StubTextEngine) Infer(_ context.Context, model domain.ModelVersion, payloadJSON string) (Output, error) {
	out, err := echo(model, payloadJSON)
	if err != nil {
		return Output{}, err
	}
	return Output{
		JSON:        out,
		Confidence:  0.5,
		Explanation: "text stub echo of " + model.ID.String(),
	}, nil
}
