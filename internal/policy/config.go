package policy

import (
	"encoding/json"
	"strings"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// TrainConfig is the parsed training configuration a candidate model version
// is gated on. Construct via ParseTrainConfig at trust boundaries; malformed
// input fails closed, nothing is defaulted silently.
type TrainConfig struct {
	Kind     domain.ModelKind
	DP       DPParams
	Fairness FairnessReport
	// Raw keeps the canonical source for model ID derivation.
	Raw []byte
}

// DPParams is the differential privacy configuration snapshot.
type DPParams struct {
	Enabled         bool
	Epsilon         float64
	Delta           float64
	Clip            float64
	NoiseMultiplier float64
}

// FairnessReport carries the per-subgroup metric gaps computed by the
// external evaluation collaborator.
type FairnessReport struct {
	TPRGap float64
	FPRGap float64
	PPVGap float64
}

type rawConfig struct {
	ModelKind *string      `json:"model_kind"`
	DP        *rawDP       `json:"dp"`
	Fairness  *rawFairness `json:"fairness"`
}

type rawDP struct {
	Enabled         *bool    `json:"enabled"`
	Epsilon         *float64 `json:"epsilon"`
	Delta           *float64 `json:"delta"`
	Clip            *float64 `json:"clip"`
	NoiseMultiplier *float64 `json:"noise_multiplier"`
}

type rawFairness struct {
	DeltaTPR *float64 `json:"delta_tpr"`
	DeltaFPR *float64 `json:"delta_fpr"`
	DeltaPPV *float64 `json:"delta_ppv"`
}

// ParseTrainConfig validates the raw JSON config. Every field the gate
// evaluates must be present and numeric; a config the gate cannot fully
// judge is rejected rather than partially defaulted.
func ParseTrainConfig(raw string) (TrainConfig, error) {
	var cfg rawConfig
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return TrainConfig{}, status.Wrap(status.CodeInvalidInput, "train_config_unparseable", err)
	}

	kind := domain.KindTabularLogistic
	if cfg.ModelKind != nil {
		switch *cfg.ModelKind {
		case "tabular_logreg", "":
			kind = domain.KindTabularLogistic
		case "tabular_gbdt":
			kind = domain.KindTabularGBDT
		case "text_minilm":
			kind = domain.KindTextMiniLM
		default:
			return TrainConfig{}, status.Invalid("model_kind_unknown")
		}
	}

	if cfg.DP == nil || cfg.DP.Enabled == nil {
		return TrainConfig{}, status.Invalid("dp_section_missing")
	}
	dp := DPParams{Enabled: *cfg.DP.Enabled}
	if dp.Enabled {
		if cfg.DP.Epsilon == nil || cfg.DP.Delta == nil || cfg.DP.Clip == nil || cfg.DP.NoiseMultiplier == nil {
			return TrainConfig{}, status.Invalid("dp_params_missing")
		}
		dp.Epsilon = *cfg.DP.Epsilon
		dp.Delta = *cfg.DP.Delta
		dp.Clip = *cfg.DP.Clip
		dp.NoiseMultiplier = *cfg.DP.NoiseMultiplier
	}

	if cfg.Fairness == nil {
		return TrainConfig{}, status.Invalid("fairness_report_missing")
	}
	if cfg.Fairness.DeltaTPR == nil || cfg.Fairness.DeltaFPR == nil || cfg.Fairness.DeltaPPV == nil {
		return TrainConfig{}, status.Invalid("fairness_metrics_missing")
	}

	return TrainConfig{
		Kind: kind,
		DP:   dp,
		Fairness: FairnessReport{
			TPRGap: *cfg.Fairness.DeltaTPR,
			FPRGap: *cfg.Fairness.DeltaFPR,
			PPVGap: *cfg.Fairness.DeltaPPV,
		},
		Raw: []byte(raw),
	}, nil
}
