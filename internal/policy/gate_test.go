package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

type GateSuite struct {
	suite.Suite
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func validConfigJSON() string {
	return `{
		"model_kind": "tabular_logreg",
		"dp": {"enabled": true, "epsilon": 2.9, "delta": 1e-6, "clip": 1.0, "noise_multiplier": 1.0},
		"fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}
	}`
}

func (s *GateSuite) TestBoundsAdmitCompliantConfig() {
	cfg, err := ParseTrainConfig(validConfigJSON())
	s.Require().NoError(err)

	result := Evaluate(cfg)
	s.True(result.Passed)
	s.Empty(result.Reasons)
}

func (s *GateSuite) TestEpsilonAboveBoundFailsCitingEpsilon() {
	cfg, err := ParseTrainConfig(`{
		"dp": {"enabled": true, "epsilon": 3.1, "delta": 1e-6, "clip": 1.0, "noise_multiplier": 1.0},
		"fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}
	}`)
	s.Require().NoError(err)

	result := Evaluate(cfg)
	s.False(result.Passed)
	s.Contains(result.Reasons, "dp_epsilon_exceeded")
}

func (s *GateSuite) TestAllViolatedBoundsAreReported() {
	cfg, err := ParseTrainConfig(`{
		"dp": {"enabled": true, "epsilon": 4.0, "delta": 0.01, "clip": 0, "noise_multiplier": -1},
		"fairness": {"delta_tpr": 0.2, "delta_fpr": 0.2, "delta_ppv": 0.2}
	}`)
	s.Require().NoError(err)

	result := Evaluate(cfg)
	s.False(result.Passed)
	s.ElementsMatch([]string{
		"dp_epsilon_exceeded",
		"dp_delta_exceeded",
		"dp_clip_invalid",
		"dp_noise_invalid",
		"delta_tpr_exceeded",
		"delta_fpr_exceeded",
		"delta_ppv_exceeded",
	}, result.Reasons)
}

func (s *GateSuite) TestDPDisabledSkipsDPBoundsButIsNoted() {
	cfg, err := ParseTrainConfig(`{
		"dp": {"enabled": false},
		"fairness": {"delta_tpr": 0.01, "delta_fpr": 0.01, "delta_ppv": 0.01}
	}`)
	s.Require().NoError(err)

	result := Evaluate(cfg)
	s.True(result.Passed)
	s.Contains(result.Notes, "dp_disabled")
}

func (s *GateSuite) TestFairnessBoundsAreExclusiveAtTheEdge() {
	for _, tc := range []struct {
		field string
		json  string
		want  string
	}{
		{"tpr", `{"delta_tpr": 0.051, "delta_fpr": 0, "delta_ppv": 0}`, "delta_tpr_exceeded"},
		{"fpr", `{"delta_tpr": 0, "delta_fpr": 0.031, "delta_ppv": 0}`, "delta_fpr_exceeded"},
		{"ppv", `{"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0.041}`, "delta_ppv_exceeded"},
	} {
		s.Run(tc.field, func() {
			cfg, err := ParseTrainConfig(fmt.Sprintf(
				`{"dp": {"enabled": false}, "fairness": %s}`, tc.json))
			s.Require().NoError(err)

			result := Evaluate(cfg)
			s.False(result.Passed)
			s.Equal([]string{tc.want}, result.Reasons)
		})
	}
}

func (s *GateSuite) TestExactBoundsStillPass() {
	cfg, err := ParseTrainConfig(`{
		"dp": {"enabled": true, "epsilon": 3.0, "delta": 1e-5, "clip": 0.1, "noise_multiplier": 0.1},
		"fairness": {"delta_tpr": 0.05, "delta_fpr": 0.03, "delta_ppv": 0.04}
	}`)
	s.Require().NoError(err)

	s.True(Evaluate(cfg).Passed)
}

type ParseSuite struct {
	suite.Suite
}

func TestParseSuite(t *testing.T) {
	suite.Run(t, new(ParseSuite))
}

func (s *ParseSuite) TestMalformedConfigFailsClosed() {
	cases := map[string]string{
		"not json":                 `{`,
		"dp section missing":       `{"fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`,
		"dp enabled missing":       `{"dp": {}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`,
		"dp params missing":        `{"dp": {"enabled": true, "epsilon": 1.0}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`,
		"non-numeric epsilon":      `{"dp": {"enabled": true, "epsilon": "high", "delta": 1e-6, "clip": 1, "noise_multiplier": 1}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`,
		"fairness section missing": `{"dp": {"enabled": false}}`,
		"fairness metric missing":  `{"dp": {"enabled": false}, "fairness": {"delta_tpr": 0}}`,
		"unknown model kind":       `{"model_kind": "vision_resnet", "dp": {"enabled": false}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`,
	}

	for name, raw := range cases {
		s.Run(name, func() {
			_, err := ParseTrainConfig(raw)
			s.Require().Error(err)
			s.Equal(status.CodeInvalidInput, status.CodeOf(err))
		})
	}
}

func (s *ParseSuite) TestModelKindParsing() {
	for raw, want := range map[string]domain.ModelKind{
		`{"model_kind": "tabular_gbdt", "dp": {"enabled": false}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`: domain.KindTabularGBDT,
		`{"model_kind": "text_minilm", "dp": {"enabled": false}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`:  domain.KindTextMiniLM,
		`{"dp": {"enabled": false}, "fairness": {"delta_tpr": 0, "delta_fpr": 0, "delta_ppv": 0}}`:                               domain.KindTabularLogistic,
	} {
		cfg, err := ParseTrainConfig(raw)
		s.Require().NoError(err)
		s.Equal(want, cfg.Kind)
	}
}
