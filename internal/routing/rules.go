package routing

import (
	"encoding/json"
	"unicode/utf8"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// TextThreshold is the payload text length, in code points, above which a
// request routes to the text engine.
const TextThreshold = 256

// Reason records which rule picked the target.
type Reason string

const (
	// ReasonOverride: the request pinned itself to the tabular engine.
	ReasonOverride Reason = "override"
	// ReasonPayloadSize: the target followed from payload shape alone.
	ReasonPayloadSize Reason = "payload_size"
	// ReasonFallback: the text engine failed and the request was retried
	// on the tabular engine.
	ReasonFallback Reason = "fallback"
)

// Decision is the routing verdict built fresh per request. Attempted lists
// every target actually tried, in order, for audit transparency; it is
// filled in by the invoker, not by the rules.
type Decision struct {
	Target    domain.RouteTarget   `json:"target"`
	Reason    Reason               `json:"reason"`
	Attempted []domain.RouteTarget `json:"attempted"`
}

// Input is the distilled view of a request the rules operate on. Extracting
// it up front keeps Decide pure and trivially reproducible.
type Input struct {
	TabularOnly bool
	TextRunes   int
}

// ParseInput extracts the routing-relevant fields from the raw payload.
// Unknown fields are ignored; a payload that is not a JSON object is
// rejected before any routing work.
func ParseInput(payloadJSON string) (Input, error) {
	if !utf8.ValidString(payloadJSON) {
		return Input{}, status.Invalid("payload_not_utf8")
	}
	var payload struct {
		TabularOnly bool   `json:"tabular_only"`
		Text        string `json:"text"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return Input{}, status.Wrap(status.CodeInvalidInput, "payload_unparseable", err)
	}
	return Input{
		TabularOnly: payload.TabularOnly,
		TextRunes:   utf8.RuneCountInString(payload.Text),
	}, nil
}

// Decide applies the routing rules in fixed precedence:
//
//  1. explicit tabular-only override wins,
//  2. text longer than TextThreshold code points routes to the text engine,
//  3. everything else is tabular.
//
// Pure and side-effect free: identical inputs always yield identical
// decisions, which audit reproducibility depends on.
func Decide(in Input) Decision {
	if in.TabularOnly {
		return Decision{Target: domain.TargetTabular, Reason: ReasonOverride}
	}
	if in.TextRunes > TextThreshold {
		return Decision{Target: domain.TargetText, Reason: ReasonPayloadSize}
	}
	return Decision{Target: domain.TargetTabular, Reason: ReasonPayloadSize}
}
