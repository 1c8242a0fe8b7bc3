package inference

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"deltagate/internal/consent"
	"deltagate/internal/domain"
	"deltagate/internal/ledger"
	"deltagate/internal/registry"
	"deltagate/internal/routing"
	"deltagate/internal/whylog"
	"deltagate/pkg/status"
)

var (
	inferTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltagate_infer_total",
		Help: "Inference outcomes",
	}, []string{"target", "outcome"}) // outcome: "ok", "denied", "error", "invalid"

	inferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deltagate_infer_latency_seconds",
		Help:    "End to end inference latency",
		Buckets: prometheus.DefBuckets,
	})
)

// Request is one inference call. SubjectID is the raw subject identifier;
// it is hashed immediately and never retained in raw form.
type Request struct {
	Purpose     domain.PurposeID
	SubjectID   string
	PayloadJSON string
}

// Prediction is the caller-visible result, explanation included.
type Prediction struct {
	JSON       string        `json:"json"`
	LatencyMS  int64         `json:"latency_ms"`
	Confidence float64       `json:"confidence"`
	WhyLog     whylog.WhyLog `json:"whylog"`
}

// Service runs the gated inference pipeline: consent, active model, routing,
// bounded invocation, explanation, audit. Exactly one ledger event records
// the outcome of every request that reaches the consent gate.
type Service struct {
	consent   *consent.Checker
	models    *registry.Registry
	engines   map[domain.RouteTarget]Engine
	pool      *Pool
	audit     *ledger.Ledger
	redaction whylog.RedactionPolicy
	logger    *slog.Logger
}

func NewService(checker *consent.Checker, models *registry.Registry, engines []Engine, pool *Pool, audit *ledger.Ledger, redaction whylog.RedactionPolicy, logger *slog.Logger) *Service {
	byTarget := make(map[domain.RouteTarget]Engine, len(engines))
	for _, e := range engines {
		byTarget[e.Target()] = e
	}
	if pool == nil {
		pool = NewPool(0)
	}
	return &Service{
		consent:   checker,
		models:    models,
		engines:   byTarget,
		pool:      pool,
		audit:     audit,
		redaction: redaction,
		logger:    logger,
	}
}

// Infer runs one request through the full pipeline. Consent is resolved
// before anything else; no engine runs and no payload is parsed for a
// subject without an effective grant.
func (s *Service) Infer(ctx context.Context, req Request) (Prediction, error) {
	start := time.Now()

	if req.SubjectID == "" {
		inferTotal.WithLabelValues("none", "invalid").Inc()
		return Prediction{}, status.Invalid("subject_missing")
	}
	if !utf8.ValidString(req.SubjectID) {
		inferTotal.WithLabelValues("none", "invalid").Inc()
		return Prediction{}, status.Invalid("subject_not_utf8")
	}
	subject := domain.HashSubject(req.SubjectID)

	if _, err := s.consent.Require(ctx, req.Purpose, subject); err != nil {
		s.appendOutcome(ctx, ledger.Event{
			Kind:        ledger.KindInferDenied,
			PurposeID:   req.Purpose,
			SubjectHash: subject,
			LatencyMS:   time.Since(start).Milliseconds(),
		})
		inferTotal.WithLabelValues("none", "denied").Inc()
		return Prediction{}, err
	}

	model, ok := s.models.Active()
	if !ok {
		err := status.ModelMissing("model_not_active")
		s.appendOutcome(ctx, ledger.Event{
			Kind:        ledger.KindInferError,
			PurposeID:   req.Purpose,
			SubjectHash: subject,
			LatencyMS:   time.Since(start).Milliseconds(),
		})
		inferTotal.WithLabelValues("none", "error").Inc()
		return Prediction{}, err
	}

	in, err := routing.ParseInput(req.PayloadJSON)
	if err != nil {
		s.appendOutcome(ctx, ledger.Event{
			Kind:        ledger.KindInferError,
			ModelID:     model.ID,
			Version:     model.Version,
			PurposeID:   req.Purpose,
			SubjectHash: subject,
			LatencyMS:   time.Since(start).Milliseconds(),
		})
		inferTotal.WithLabelValues("none", "invalid").Inc()
		return Prediction{}, err
	}

	decision := routing.Decide(in)
	out, decision, err := s.invoke(ctx, model, decision, req.PayloadJSON)
	if err != nil {
		s.appendOutcome(ctx, ledger.Event{
			Kind:        ledger.KindInferError,
			ModelID:     model.ID,
			Version:     model.Version,
			PurposeID:   req.Purpose,
			SubjectHash: subject,
			LatencyMS:   time.Since(start).Milliseconds(),
		})
		inferTotal.WithLabelValues(string(decision.Target), "error").Inc()
		return Prediction{}, err
	}

	wl, err := whylog.Build(whylog.Evidence{
		ModelID:     model.ID,
		Version:     model.Version,
		Target:      decision.Target,
		RouteReason: decision.Reason,
		Attempted:   decision.Attempted,
		Confidence:  out.Confidence,
		Summary:     out.Explanation,
	}, s.redaction)
	if err != nil {
		inferTotal.WithLabelValues(string(decision.Target), "error").Inc()
		return Prediction{}, err
	}

	latency := time.Since(start).Milliseconds()
	if appendErr := s.audit.Append(ctx, ledger.Event{
		Kind:        ledger.KindInferSuccess,
		ModelID:     model.ID,
		Version:     model.Version,
		PurposeID:   req.Purpose,
		SubjectHash: subject,
		LatencyMS:   latency,
		WhyLogHash:  wl.Hash,
	}); appendErr != nil {
		// An unauditable prediction is not served.
		inferTotal.WithLabelValues(string(decision.Target), "error").Inc()
		return Prediction{}, appendErr
	}

	inferTotal.WithLabelValues(string(decision.Target), "ok").Inc()
	inferLatency.Observe(time.Since(start).Seconds())
	return Prediction{
		JSON:       out.JSON,
		LatencyMS:  latency,
		Confidence: out.Confidence,
		WhyLog:     wl,
	}, nil
}

// InferBatch fans payloads out through the worker pool, failing fast on the
// first error. Result order matches payload order.
func (s *Service) InferBatch(ctx context.Context, purpose domain.PurposeID, subjectID string, payloads []string) ([]Prediction, error) {
	results := make([]Prediction, len(payloads))
	g, gctx := errgroup.WithContext(ctx)
	for i, payload := range payloads {
		g.Go(func() error {
			p, err := s.Infer(gctx, Request{
				Purpose:     purpose,
				SubjectID:   subjectID,
				PayloadJSON: payload,
			})
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invoke runs the engine for the decided target. A text-engine failure is
// retried exactly once on the tabular engine; Attempted records every try.
func (s *Service) invoke(ctx context.Context, model domain.ModelVersion, decision routing.Decision, payloadJSON string) (Output, routing.Decision, error) {
	decision.Attempted = []domain.RouteTarget{decision.Target}

	out, err := s.call(ctx, decision.Target, model, payloadJSON)
	if err == nil {
		return out, decision, nil
	}

	if decision.Target == domain.TargetText {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "text engine failed, retrying on tabular",
				"model_id", model.ID.String(),
				"error", err,
			)
		}
		decision.Attempted = append(decision.Attempted, domain.TargetTabular)
		out, retryErr := s.call(ctx, domain.TargetTabular, model, payloadJSON)
		if retryErr == nil {
			decision.Target = domain.TargetTabular
			decision.Reason = routing.ReasonFallback
			return out, decision, nil
		}
		err = retryErr
	}

	return Output{}, decision, status.Wrap(status.CodeInternal, "engine_failed", err)
}

func (s *Service) call(ctx context.Context, target domain.RouteTarget, model domain.ModelVersion, payloadJSON string) (Output, error) {
	engine, ok := s.engines[target]
	if !ok {
		return Output{}, status.Internal("engine_unavailable")
	}
	if err := s.pool.acquire(ctx); err != nil {
		return Output{}, err
	}
	defer s.pool.release()
	return engine.Infer(ctx, model, payloadJSON)
}

// appendOutcome records a non-success outcome. Append failures here are
// logged, not returned: the caller already holds a more primary error.
func (s *Service) appendOutcome(ctx context.Context, event ledger.Event) {
	if err := s.audit.Append(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "audit append failed for outcome event",
			"kind", string(event.Kind),
			"error", err,
		)
	}
}
