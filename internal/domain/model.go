package domain

// ModelKind identifies the fixed model families the platform trains.
type ModelKind string

const (
	KindTabularLogistic ModelKind = "tabular-logreg"
	KindTabularGBDT     ModelKind = "tabular-gbdt"
	KindTextMiniLM      ModelKind = "text-minilm"
)

// RouteTarget is the engine class a request is dispatched to.
type RouteTarget string

const (
	TargetTabular RouteTarget = "tabular"
	TargetText    RouteTarget = "text"
)

// RouteClass maps a model kind to the engine class serving it.
func (k ModelKind) RouteClass() RouteTarget {
	if k == KindTextMiniLM {
		return TargetText
	}
	return TargetTabular
}

// ModelStatus is the lifecycle state of one model version.
//
// Draft -> Admitted requires a passed policy gate; Admitted -> Active is an
// explicit activation with at most one Active version per model ID. Retired
// is terminal.
type ModelStatus string

const (
	StatusDraft    ModelStatus = "draft"
	StatusAdmitted ModelStatus = "admitted"
	StatusActive   ModelStatus = "active"
	StatusRetired  ModelStatus = "retired"
)

// PolicyGateResult is the immutable admission verdict computed at publish
// time. Passed is true iff every configured bound held; Reasons carries one
// token per violated bound, not just the first.
type PolicyGateResult struct {
	DPEnabled         bool     `json:"dp_enabled"`
	DPEpsilon         float64  `json:"dp_epsilon"`
	DPDelta           float64  `json:"dp_delta"`
	DPClip            float64  `json:"dp_clip"`
	DPNoiseMultiplier float64  `json:"dp_noise_multiplier"`
	TPRGap            float64  `json:"tpr_gap"`
	FPRGap            float64  `json:"fpr_gap"`
	PPVGap            float64  `json:"ppv_gap"`
	Passed            bool     `json:"passed"`
	Reasons           []string `json:"reasons"`
	Notes             []string `json:"notes,omitempty"`
}

// ModelVersion is the versioned model entity. The artefact outlives the
// in-memory record; ArtifactRef points at it.
type ModelVersion struct {
	ID          ModelID
	Version     VersionName
	Kind        ModelKind
	ArtifactRef string
	Gate        PolicyGateResult
	Status      ModelStatus
	CreatedMS   int64
}
