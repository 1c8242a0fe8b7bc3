package training

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"deltagate/internal/dataset"
	"deltagate/internal/domain"
	"deltagate/internal/ledger"
	"deltagate/internal/registry"
	"deltagate/pkg/status"
)

const (
	passingConfig = `{
		"model_kind": "tabular_logreg",
		"dp": {"enabled": true, "epsilon": 2.0, "delta": 0.000001, "clip": 1.0, "noise_multiplier": 1.1},
		"fairness": {"delta_tpr": 0.01, "delta_fpr": 0.01, "delta_ppv": 0.01}
	}`
	failingConfig = `{
		"model_kind": "tabular_gbdt",
		"dp": {"enabled": true, "epsilon": 9.0, "delta": 0.000001, "clip": 1.0, "noise_multiplier": 1.1},
		"fairness": {"delta_tpr": 0.2, "delta_fpr": 0.01, "delta_ppv": 0.01}
	}`
)

type TrainSuite struct {
	suite.Suite
	ctx       context.Context
	datasets  *dataset.MemoryStore
	models    *registry.Registry
	audit     *ledger.MemoryStore
	artifacts *MemoryArtifacts
	service   *Service
	datasetID domain.DatasetID
}

func TestTrainSuite(t *testing.T) {
	suite.Run(t, new(TrainSuite))
}

func (s *TrainSuite) SetupTest() {
	s.ctx = context.Background()
	s.datasets = dataset.NewMemoryStore()
	s.models = registry.New()
	s.audit = ledger.NewMemoryStore()
	s.artifacts = NewMemoryArtifacts()

	signer, err := ledger.NewSigner()
	s.Require().NoError(err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(s.audit, signer, ledger.Config{}, logger)

	s.datasetID = domain.DatasetID("ds-0011223344556677")
	s.Require().NoError(s.datasets.Put(s.ctx, dataset.Dataset{
		ID:   s.datasetID,
		Rows: 100,
	}))

	s.service = NewService(s.datasets, s.models, led, s.artifacts, signer.PublicKeyHex(), logger)
}

func (s *TrainSuite) TestTrainAdmitsPassingConfig() {
	model, err := s.service.Train(s.ctx, s.datasetID, passingConfig)
	s.Require().NoError(err)

	s.Equal(domain.StatusAdmitted, model.Status)
	s.Equal(domain.KindTabularLogistic, model.Kind)
	s.Regexp(`^tabular-logreg-[0-9a-f]{16}$`, model.ID.String())
	s.Regexp(`^v[0-9]+$`, model.Version.String())
	s.Equal("models/"+model.ID.String()+"/"+model.Version.String()+"/model.bin", model.ArtifactRef)
	s.True(model.Gate.Passed)

	s.Run("artifact written", func() {
		s.Equal([]string{model.ArtifactRef}, s.artifacts.Refs())
	})

	s.Run("admit event appended", func() {
		records := s.audit.All()
		s.Require().Len(records, 1)
		s.Equal(ledger.KindTrainAdmit, records[0].Kind)
		s.Equal(model.ID, records[0].ModelID)
		s.Equal(model.Version, records[0].Version)
		s.Equal(s.datasetID, records[0].DatasetID)
	})
}

func (s *TrainSuite) TestTrainRejectsFailingConfigButKeepsDraft() {
	model, err := s.service.Train(s.ctx, s.datasetID, failingConfig)
	s.Require().Error(err)
	s.Equal(status.CodePolicyDenied, status.CodeOf(err))
	s.Contains(status.ReasonOf(err), "dp_epsilon_exceeded")
	s.Contains(status.ReasonOf(err), "delta_tpr_exceeded")

	s.Equal(domain.StatusDraft, model.Status)
	s.False(model.Gate.Passed)

	s.Run("draft registered for audit", func() {
		stored, err := s.models.Get(model.ID, model.Version)
		s.Require().NoError(err)
		s.Equal(domain.StatusDraft, stored.Status)
	})

	s.Run("no artifact written", func() {
		s.Empty(s.artifacts.Refs())
	})

	s.Run("reject event appended", func() {
		records := s.audit.All()
		s.Require().Len(records, 1)
		s.Equal(ledger.KindTrainReject, records[0].Kind)
	})
}

func (s *TrainSuite) TestTrainRequiresKnownDataset() {
	_, err := s.service.Train(s.ctx, "ds-ffffffffffffffff", passingConfig)
	s.Require().Error(err)
	s.Equal(status.CodeInvalidInput, status.CodeOf(err))
	s.Empty(s.audit.All())
}

func (s *TrainSuite) TestTrainRejectsMalformedConfig() {
	_, err := s.service.Train(s.ctx, s.datasetID, `{"dp":`)
	s.Require().Error(err)
	s.Equal(status.CodeInvalidInput, status.CodeOf(err))
}

func (s *TrainSuite) TestModelIDDeterministicAcrossVersions() {
	first, err := s.service.Train(s.ctx, s.datasetID, passingConfig)
	s.Require().NoError(err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.service.Train(s.ctx, s.datasetID, passingConfig)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID, "same dataset and config keep the model family")
	s.NotEqual(first.Version, second.Version)

	s.Run("whitespace variants share identity", func() {
		time.Sleep(2 * time.Millisecond)
		third, err := s.service.Train(s.ctx, s.datasetID, "  "+passingConfig)
		s.Require().NoError(err)
		s.Equal(first.ID, third.ID)
	})
}

func (s *TrainSuite) TestActivateAppendsLedgerEvent() {
	model, err := s.service.Train(s.ctx, s.datasetID, passingConfig)
	s.Require().NoError(err)

	active, err := s.service.Activate(s.ctx, model.ID, "")
	s.Require().NoError(err)
	s.Equal(domain.StatusActive, active.Status)
	s.Equal(model.Version, active.Version)

	records := s.audit.All()
	s.Require().Len(records, 2)
	s.Equal(ledger.KindActivate, records[1].Kind)

	s.Run("draft cannot activate", func() {
		draft, err := s.service.Train(s.ctx, s.datasetID, failingConfig)
		s.Require().Error(err)
		_, err = s.service.Activate(s.ctx, draft.ID, draft.Version)
		s.Require().Error(err)
		s.Equal(status.CodePolicyDenied, status.CodeOf(err))
	})
}

func (s *TrainSuite) TestExportModelCard() {
	model, err := s.service.Train(s.ctx, s.datasetID, passingConfig)
	s.Require().NoError(err)

	card, err := s.service.ExportModelCard(s.ctx, model.ID, "")
	s.Require().NoError(err)

	var decoded ModelCard
	s.Require().NoError(json.Unmarshal([]byte(card), &decoded))
	s.Equal(model.ID, decoded.ModelID)
	s.Equal(model.Version, decoded.Version)
	s.Equal(domain.KindTabularLogistic, decoded.Kind)
	s.Equal(model.ArtifactRef, decoded.Artifact)
	s.Equal(domain.StatusAdmitted, decoded.Status)
	s.True(decoded.DP.Enabled)
	s.InDelta(2.0, decoded.DP.Epsilon, 1e-9)
	s.InDelta(0.01, decoded.Fairness.DeltaTPR, 1e-9)
	s.True(decoded.Gate.Passed)
	s.Empty(decoded.Gate.Reasons)
	s.NotEmpty(decoded.SigningKey)

	s.Run("rejected candidate exports reasons", func() {
		draft, trainErr := s.service.Train(s.ctx, s.datasetID, failingConfig)
		s.Require().Error(trainErr)

		card, err := s.service.ExportModelCard(s.ctx, draft.ID, draft.Version)
		s.Require().NoError(err)
		var decoded ModelCard
		s.Require().NoError(json.Unmarshal([]byte(card), &decoded))
		s.False(decoded.Gate.Passed)
		s.Contains(decoded.Gate.Reasons, "dp_epsilon_exceeded")
		s.Contains(decoded.Gate.Reasons, "delta_tpr_exceeded")
		s.Equal(domain.StatusDraft, decoded.Status)
	})

	s.Run("unknown model missing", func() {
		_, err := s.service.ExportModelCard(s.ctx, "tabular-logreg-ffffffffffffffff", "")
		s.Require().Error(err)
		s.Equal(status.CodeModelMissing, status.CodeOf(err))
	})
}
