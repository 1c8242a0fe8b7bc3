package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"deltagate/pkg/status"
)

var (
	appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltagate_ledger_appends_total",
		Help: "Ledger append outcomes",
	}, []string{"kind", "outcome"}) // outcome: "ok", "error"

	sealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deltagate_ledger_segments_sealed_total",
		Help: "Sealed ledger segments",
	})

	segmentFill = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deltagate_ledger_segment_fill",
		Help: "Events in the currently open segment",
	})
)

const (
	// DefaultSegmentSize is the number of events per sealed segment.
	DefaultSegmentSize = 1000

	appendRetries = 3
	retryBackoff  = 25 * time.Millisecond
)

// Store persists records and sealed segments. Implementations must write
// each record atomically (a single complete line or row) so readers never
// observe a partial event. There is deliberately no update or delete API.
type Store interface {
	AppendEvent(ctx context.Context, rec Record) error
	AppendSegment(ctx context.Context, seg Segment) error
	EventsBySegment(ctx context.Context, segmentIndex uint64) ([]Record, error)
	Segments(ctx context.Context) ([]Segment, error)
}

// Ledger serializes all appends through one writer so event order within a
// segment equals append-call order. Readers go straight to the store and
// only ever see fully appended records.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	signer  *Signer
	segSize int
	timeout time.Duration
	logger  *slog.Logger

	seq      uint64
	segIndex uint64
	leaves   [][32]byte
	firstSeq uint64
}

// Config carries ledger tuning; zero values take defaults.
type Config struct {
	SegmentSize   int
	AppendTimeout time.Duration
}

// New builds a ledger. signer may be nil, in which case appends work but
// sealing fails loudly - an unsigned segment is worse than a delayed one.
func New(store Store, signer *Signer, cfg Config, logger *slog.Logger) *Ledger {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 5 * time.Second
	}
	return &Ledger{
		store:   store,
		signer:  signer,
		segSize: cfg.SegmentSize,
		timeout: cfg.AppendTimeout,
		logger:  logger,
	}
}

// Append adds one event to the open segment. The event is written fully or
// not at all; a store failure is retried a bounded number of times before
// surfacing Internal. Filling the segment seals it in the same call.
func (l *Ledger) Append(ctx context.Context, event Event) error {
	if event.Kind == "" {
		return status.Invalid("event_kind_missing")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}

	leaf, err := event.LeafHash()
	if err != nil {
		appendsTotal.WithLabelValues(string(event.Kind), "error").Inc()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.leaves) == 0 {
		l.firstSeq = l.seq
	}
	leaves := append(l.leaves, leaf)
	rec := Record{
		Event:        event,
		Seq:          l.seq,
		SegmentIndex: l.segIndex,
		MerkleRoot:   rootHex(merkleRoot(leaves)),
	}

	if err := l.appendWithRetry(ctx, rec); err != nil {
		appendsTotal.WithLabelValues(string(event.Kind), "error").Inc()
		return err
	}

	l.leaves = leaves
	l.seq++
	segmentFill.Set(float64(len(l.leaves)))
	appendsTotal.WithLabelValues(string(event.Kind), "ok").Inc()

	if len(l.leaves) >= l.segSize {
		if _, err := l.sealLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush seals whatever the open segment holds, e.g. on shutdown. Returns
// (nil, nil) when there is nothing to seal.
func (l *Ledger) Flush(ctx context.Context) (*Segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.leaves) == 0 {
		return nil, nil
	}
	return l.sealLocked(ctx)
}

// sealLocked computes and signs the segment root. Caller holds l.mu.
func (l *Ledger) sealLocked(ctx context.Context) (*Segment, error) {
	if l.signer == nil {
		return nil, status.Internal("signing_key_unavailable")
	}

	root := merkleRoot(l.leaves)
	seg := Segment{
		ID:           uuid.NewString(),
		Index:        l.segIndex,
		Count:        len(l.leaves),
		FirstSeq:     l.firstSeq,
		LastSeq:      l.seq - 1,
		Root:         rootHex(root),
		Signature:    l.signer.Sign(root),
		PublicKeyHex: l.signer.PublicKeyHex(),
		SealedAt:     time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.AppendSegment(storeCtx, seg); err != nil {
		return nil, status.Wrap(status.CodeInternal, "segment_store_failed", err)
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "ledger segment sealed",
			"segment", seg.Index,
			"count", seg.Count,
			"root", seg.Root,
		)
	}

	l.segIndex++
	l.leaves = nil
	segmentFill.Set(0)
	sealsTotal.Inc()
	return &seg, nil
}

func (l *Ledger) appendWithRetry(ctx context.Context, rec Record) error {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
		err := l.store.AppendEvent(storeCtx, rec)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		time.Sleep(retryBackoff << attempt)
	}
	if l.logger != nil {
		l.logger.ErrorContext(ctx, "ledger append failed after retries",
			"kind", string(rec.Kind),
			"seq", rec.Seq,
			"error", lastErr,
		)
	}
	return status.Wrap(status.CodeInternal, "ledger_append_failed", lastErr)
}

// Verify re-derives the Merkle root from the stored records of a segment
// and checks the signature. Any mutation of any stored event byte makes the
// recomputed root mismatch the signed one.
func Verify(seg Segment, records []Record) error {
	if len(records) != seg.Count {
		return status.Internal("segment_count_mismatch")
	}
	leaves := make([][32]byte, 0, len(records))
	for _, rec := range records {
		leaf, err := rec.Event.LeafHash()
		if err != nil {
			return err
		}
		leaves = append(leaves, leaf)
	}
	return VerifySegment(seg, merkleRoot(leaves))
}
