// Package training turns a dataset and a training configuration into gated
// model versions. Admission is decided here exactly once, at publish time;
// serving never re-evaluates the gate.
package training

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/blake2b"

	"deltagate/internal/dataset"
	"deltagate/internal/domain"
	"deltagate/internal/ledger"
	"deltagate/internal/policy"
	"deltagate/internal/registry"
	"deltagate/pkg/canonjson"
	"deltagate/pkg/status"
)

var trainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "deltagate_train_total",
	Help: "Training outcomes by gate verdict",
}, []string{"kind", "outcome"}) // outcome: "admitted", "rejected", "invalid", "error"

// Service orchestrates train, activate and export flows.
type Service struct {
	datasets dataset.Store
	models   *registry.Registry
	audit    *ledger.Ledger
	store    Artifacts
	// signingKey is the hex verification key stamped into model cards so a
	// card can be tied back to the ledger segments of its era.
	signingKey string
	logger     *slog.Logger
}

func NewService(datasets dataset.Store, models *registry.Registry, audit *ledger.Ledger, store Artifacts, signingKey string, logger *slog.Logger) *Service {
	return &Service{
		datasets:   datasets,
		models:     models,
		audit:      audit,
		store:      store,
		signingKey: signingKey,
		logger:     logger,
	}
}

// Train parses and gates the config, derives the version identity and
// registers the result. A failed gate still registers the version as Draft
// with its full reason list, then returns PolicyDenied.
func (s *Service) Train(ctx context.Context, datasetID domain.DatasetID, cfgJSON string) (domain.ModelVersion, error) {
	if _, err := s.datasets.Get(ctx, datasetID); err != nil {
		trainsTotal.WithLabelValues("unknown", "invalid").Inc()
		return domain.ModelVersion{}, err
	}

	cfg, err := policy.ParseTrainConfig(cfgJSON)
	if err != nil {
		trainsTotal.WithLabelValues("unknown", "invalid").Inc()
		return domain.ModelVersion{}, err
	}

	gate := policy.Evaluate(cfg)

	modelID, err := deriveModelID(datasetID, cfg)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	now := time.Now().UnixMilli()
	model := domain.ModelVersion{
		ID:        modelID,
		Version:   domain.VersionName("v" + strconv.FormatInt(now, 10)),
		Kind:      cfg.Kind,
		Gate:      gate,
		CreatedMS: now,
	}
	model.ArtifactRef = "models/" + model.ID.String() + "/" + model.Version.String() + "/model.bin"

	if gate.Passed {
		model.Status = domain.StatusAdmitted
	} else {
		model.Status = domain.StatusDraft
	}

	if err := s.models.Put(model); err != nil {
		trainsTotal.WithLabelValues(string(model.Kind), "error").Inc()
		return domain.ModelVersion{}, err
	}

	if !gate.Passed {
		if err := s.audit.Append(ctx, ledger.Event{
			Kind:      ledger.KindTrainReject,
			DatasetID: datasetID,
			ModelID:   model.ID,
			Version:   model.Version,
		}); err != nil {
			return domain.ModelVersion{}, err
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "training gate rejected version",
				"model_id", model.ID.String(),
				"version", model.Version.String(),
				"reasons", gate.Reasons,
			)
		}
		trainsTotal.WithLabelValues(string(model.Kind), "rejected").Inc()
		return model, status.PolicyDenied(strings.Join(gate.Reasons, ","))
	}

	if s.store != nil {
		if err := s.store.Put(ctx, model); err != nil {
			trainsTotal.WithLabelValues(string(model.Kind), "error").Inc()
			return domain.ModelVersion{}, err
		}
	}

	if err := s.audit.Append(ctx, ledger.Event{
		Kind:      ledger.KindTrainAdmit,
		DatasetID: datasetID,
		ModelID:   model.ID,
		Version:   model.Version,
	}); err != nil {
		return domain.ModelVersion{}, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "model version admitted",
			"model_id", model.ID.String(),
			"version", model.Version.String(),
			"kind", string(model.Kind),
		)
	}
	trainsTotal.WithLabelValues(string(model.Kind), "admitted").Inc()
	return model, nil
}

// Activate promotes a version into the serving slot. A zero version means
// the newest admitted one.
func (s *Service) Activate(ctx context.Context, id domain.ModelID, version domain.VersionName) (domain.ModelVersion, error) {
	model, err := s.models.Activate(id, version)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if err := s.audit.Append(ctx, ledger.Event{
		Kind:    ledger.KindActivate,
		ModelID: model.ID,
		Version: model.Version,
	}); err != nil {
		return domain.ModelVersion{}, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "model version activated",
			"model_id", model.ID.String(),
			"version", model.Version.String(),
		)
	}
	return model, nil
}

// ModelCard is the exported audit description of one model version.
type ModelCard struct {
	ModelID  domain.ModelID     `json:"model_id"`
	Version  domain.VersionName `json:"version"`
	Kind     domain.ModelKind   `json:"kind"`
	Artifact string             `json:"artefact"`
	Status   domain.ModelStatus `json:"status"`
	DP       cardDP             `json:"dp"`
	Fairness cardFairness       `json:"fairness"`
	Gate     cardGate           `json:"gate"`
	// SigningKey is the ledger verification key active when the card was
	// exported.
	SigningKey string `json:"signing_key,omitempty"`
}

type cardDP struct {
	Enabled         bool    `json:"enabled"`
	Epsilon         float64 `json:"epsilon"`
	Delta           float64 `json:"delta"`
	Clip            float64 `json:"clip"`
	NoiseMultiplier float64 `json:"noise_multiplier"`
}

type cardFairness struct {
	DeltaTPR float64 `json:"delta_tpr"`
	DeltaFPR float64 `json:"delta_fpr"`
	DeltaPPV float64 `json:"delta_ppv"`
}

type cardGate struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
	Notes   []string `json:"notes,omitempty"`
}

// ExportModelCard renders the canonical model card JSON. A zero version
// exports the newest version regardless of gate verdict, so rejected
// candidates are auditable too.
func (s *Service) ExportModelCard(ctx context.Context, id domain.ModelID, version domain.VersionName) (string, error) {
	var model domain.ModelVersion
	var err error
	if version.IsZero() {
		model, err = s.models.Latest(id)
	} else {
		model, err = s.models.Get(id, version)
	}
	if err != nil {
		return "", err
	}

	card := ModelCard{
		ModelID:  model.ID,
		Version:  model.Version,
		Kind:     model.Kind,
		Artifact: model.ArtifactRef,
		Status:   model.Status,
		DP: cardDP{
			Enabled:         model.Gate.DPEnabled,
			Epsilon:         model.Gate.DPEpsilon,
			Delta:           model.Gate.DPDelta,
			Clip:            model.Gate.DPClip,
			NoiseMultiplier: model.Gate.DPNoiseMultiplier,
		},
		Fairness: cardFairness{
			DeltaTPR: model.Gate.TPRGap,
			DeltaFPR: model.Gate.FPRGap,
			DeltaPPV: model.Gate.PPVGap,
		},
		Gate: cardGate{
			Passed:  model.Gate.Passed,
			Reasons: model.Gate.Reasons,
			Notes:   model.Gate.Notes,
		},
		SigningKey: s.signingKey,
	}

	out, err := canonjson.Marshal(card)
	if err != nil {
		return "", status.Wrap(status.CodeInternal, "model_card_encode_failed", err)
	}
	return string(out), nil
}

// deriveModelID hashes the dataset identity, the canonical config and the
// kind label. The same inputs always yield the same model family.
func deriveModelID(datasetID domain.DatasetID, cfg policy.TrainConfig) (domain.ModelID, error) {
	canonicalCfg, err := canonjson.Marshal(json.RawMessage(cfg.Raw))
	if err != nil {
		return "", status.Wrap(status.CodeInternal, "train_config_canon_failed", err)
	}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", status.Wrap(status.CodeInternal, "model_id_hash_failed", err)
	}
	hasher.Write([]byte(datasetID.String()))
	hasher.Write(canonicalCfg)
	hasher.Write([]byte(cfg.Kind))

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return domain.NewModelID(string(cfg.Kind), digest), nil
}
