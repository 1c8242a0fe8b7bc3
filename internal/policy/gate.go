package policy

import "deltagate/internal/domain"

// Admission bounds. A candidate version must satisfy every bound to pass;
// gating is all-or-nothing for a given version.
const (
	MaxEpsilon = 3.0
	MaxDelta   = 1e-5
	MaxTPRGap  = 0.05
	MaxFPRGap  = 0.03
	MaxPPVGap  = 0.04
)

// Evaluate applies the DP and fairness admission checks to produce the
// immutable gate verdict. Pure domain logic - no I/O, no side effects; the
// caller persists the result onto the model version record.
//
// Every violated bound contributes its own reason token so a rejected
// config can be fixed in one round trip.
func Evaluate(cfg TrainConfig) domain.PolicyGateResult {
	result := domain.PolicyGateResult{
		DPEnabled:         cfg.DP.Enabled,
		DPEpsilon:         cfg.DP.Epsilon,
		DPDelta:           cfg.DP.Delta,
		DPClip:            cfg.DP.Clip,
		DPNoiseMultiplier: cfg.DP.NoiseMultiplier,
		TPRGap:            cfg.Fairness.TPRGap,
		FPRGap:            cfg.Fairness.FPRGap,
		PPVGap:            cfg.Fairness.PPVGap,
		Reasons:           []string{},
	}

	if cfg.DP.Enabled {
		if cfg.DP.Epsilon > MaxEpsilon {
			result.Reasons = append(result.Reasons, "dp_epsilon_exceeded")
		}
		if cfg.DP.Delta > MaxDelta {
			result.Reasons = append(result.Reasons, "dp_delta_exceeded")
		}
		if cfg.DP.Clip <= 0 {
			result.Reasons = append(result.Reasons, "dp_clip_invalid")
		}
		if cfg.DP.NoiseMultiplier <= 0 {
			result.Reasons = append(result.Reasons, "dp_noise_invalid")
		}
	} else {
		// Not a violation: training without DP is allowed, but the model
		// card must say so.
		result.Notes = append(result.Notes, "dp_disabled")
	}

	if cfg.Fairness.TPRGap > MaxTPRGap {
		result.Reasons = append(result.Reasons, "delta_tpr_exceeded")
	}
	if cfg.Fairness.FPRGap > MaxFPRGap {
		result.Reasons = append(result.Reasons, "delta_fpr_exceeded")
	}
	if cfg.Fairness.PPVGap > MaxPPVGap {
		result.Reasons = append(result.Reasons, "delta_ppv_exceeded")
	}

	result.Passed = len(result.Reasons) == 0
	return result
}
