// Package whylog builds the explanation artifact attached to every gated
// decision. The durable part is a content hash over canonical JSON; the
// evidence itself is a surrogate explanation that is redacted before it is
// retained anywhere.
package whylog

import (
	"deltagate/internal/domain"
	"deltagate/internal/routing"
	"deltagate/pkg/canonjson"
	"deltagate/pkg/status"
)

// Evidence is the surrogate explanation for one prediction. Everything here
// may be logged; Summary is the only free-text field and passes through
// redaction in Build.
type Evidence struct {
	ModelID     domain.ModelID       `json:"model_id"`
	Version     domain.VersionName   `json:"version"`
	Target      domain.RouteTarget   `json:"target"`
	RouteReason routing.Reason       `json:"route_reason"`
	Attempted   []domain.RouteTarget `json:"attempted"`
	Confidence  float64              `json:"confidence"`
	Summary     string               `json:"summary,omitempty"`
}

// WhyLog is the per-prediction explanation record. Hash is computed exactly
// once over the canonical form of the redacted evidence, so recomputing it
// from retained evidence always reproduces it.
type WhyLog struct {
	Hash             string   `json:"hash"`
	Evidence         Evidence `json:"evidence"`
	RedactionApplied bool     `json:"redaction_applied"`
}

// Build redacts the free-text evidence, canonicalizes the result and hashes
// it. Identical logical content always hashes identically regardless of how
// the evidence struct was assembled.
func Build(evidence Evidence, policy RedactionPolicy) (WhyLog, error) {
	redacted, fired := Redact(evidence.Summary, policy)
	evidence.Summary = redacted

	hash, err := canonjson.SumHex(evidence)
	if err != nil {
		return WhyLog{}, status.Wrap(status.CodeInternal, "whylog_hash_failed", err)
	}

	return WhyLog{
		Hash:             hash,
		Evidence:         evidence,
		RedactionApplied: fired,
	}, nil
}
