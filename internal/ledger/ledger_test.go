package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

type LedgerSuite struct {
	suite.Suite
	ctx context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *LedgerSuite) newLedger(store Store, segSize int) (*Ledger, *Signer) {
	signer, err := NewSigner()
	s.Require().NoError(err)
	return New(store, signer, Config{SegmentSize: segSize}, discardLogger()), signer
}

func inferEvent(i byte) Event {
	return Event{
		Kind:        KindInferSuccess,
		ModelID:     domain.ModelID("tabular-logreg-00112233445566aa"),
		Version:     domain.VersionName("v1700000000000"),
		PurposeID:   domain.PurposeID("credit-scoring"),
		SubjectHash: domain.SubjectHash("sub-0011223344556677889900aa"),
		LatencyMS:   int64(i),
		WhyLogHash:  "blake2b:deadbeef",
	}
}

func (s *LedgerSuite) TestAppendAssignsSequentialOrder() {
	store := NewMemoryStore()
	ledger, _ := s.newLedger(store, 100)

	for i := byte(0); i < 5; i++ {
		s.Require().NoError(ledger.Append(s.ctx, inferEvent(i)))
	}

	records := store.All()
	s.Require().Len(records, 5)
	for i, rec := range records {
		s.Equal(uint64(i), rec.Seq)
		s.Equal(uint64(0), rec.SegmentIndex)
		s.Equal(int64(i), rec.LatencyMS)
		s.NotEmpty(rec.ID)
		s.False(rec.TS.IsZero())
		s.NotEmpty(rec.MerkleRoot)
	}
}

func (s *LedgerSuite) TestSealAtSegmentSizeAndVerify() {
	store := NewMemoryStore()
	ledger, _ := s.newLedger(store, 3)

	for i := byte(0); i < 7; i++ {
		s.Require().NoError(ledger.Append(s.ctx, inferEvent(i)))
	}

	segs, err := store.Segments(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(segs, 2, "two full segments of three, one open")

	for _, seg := range segs {
		s.Run(seg.ID, func() {
			s.Equal(3, seg.Count)
			records, err := store.EventsBySegment(s.ctx, seg.Index)
			s.Require().NoError(err)
			s.Require().NoError(Verify(seg, records))
		})
	}

	seg, err := ledger.Flush(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(seg)
	s.Equal(1, seg.Count)
	records, err := store.EventsBySegment(s.ctx, seg.Index)
	s.Require().NoError(err)
	s.Require().NoError(Verify(*seg, records))
}

func (s *LedgerSuite) TestVerifyDetectsTampering() {
	store := NewMemoryStore()
	ledger, _ := s.newLedger(store, 4)

	for i := byte(0); i < 4; i++ {
		s.Require().NoError(ledger.Append(s.ctx, inferEvent(i)))
	}
	segs, err := store.Segments(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(segs, 1)
	records, err := store.EventsBySegment(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().NoError(Verify(segs[0], records))

	s.Run("mutated field", func() {
		tampered := append([]Record{}, records...)
		tampered[2].LatencyMS++
		s.Error(Verify(segs[0], tampered))
	})

	s.Run("swapped order", func() {
		tampered := append([]Record{}, records...)
		tampered[0], tampered[1] = tampered[1], tampered[0]
		s.Error(Verify(segs[0], tampered))
	})

	s.Run("dropped event", func() {
		err := Verify(segs[0], records[:3])
		s.Require().Error(err)
		s.Equal("segment_count_mismatch", status.ReasonOf(err))
	})

	s.Run("forged signature", func() {
		other, err := NewSigner()
		s.Require().NoError(err)
		forged := segs[0]
		rootBytes, decodeErr := hex.DecodeString(forged.Root)
		s.Require().NoError(decodeErr)
		var root [32]byte
		copy(root[:], rootBytes)
		forged.Signature = other.Sign(root)
		s.Error(Verify(forged, records))
	})
}

func (s *LedgerSuite) TestFlushOnEmptySegmentIsNoop() {
	ledger, _ := s.newLedger(NewMemoryStore(), 10)
	seg, err := ledger.Flush(s.ctx)
	s.Require().NoError(err)
	s.Nil(seg)
}

func (s *LedgerSuite) TestMissingSignerFailsSealNotAppend() {
	store := NewMemoryStore()
	ledger := New(store, nil, Config{SegmentSize: 2}, discardLogger())

	s.Require().NoError(ledger.Append(s.ctx, inferEvent(0)))

	err := ledger.Append(s.ctx, inferEvent(1))
	s.Require().Error(err)
	s.Equal(status.CodeInternal, status.CodeOf(err))
	s.Equal("signing_key_unavailable", status.ReasonOf(err))

	// Both events were committed; only the seal is withheld.
	s.Len(store.All(), 2)
	segs, segErr := store.Segments(s.ctx)
	s.Require().NoError(segErr)
	s.Empty(segs)
}

func (s *LedgerSuite) TestRejectsEventWithoutKind() {
	ledger, _ := s.newLedger(NewMemoryStore(), 10)
	err := ledger.Append(s.ctx, Event{})
	s.Require().Error(err)
	s.Equal(status.CodeInvalidInput, status.CodeOf(err))
}

func (s *LedgerSuite) TestStoreFailureRetriesThenInternal() {
	store := &flakyStore{failures: appendRetries}
	ledger, _ := s.newLedger(store, 10)

	err := ledger.Append(s.ctx, inferEvent(0))
	s.Require().Error(err)
	s.Equal(status.CodeInternal, status.CodeOf(err))
	s.Equal("ledger_append_failed", status.ReasonOf(err))
	s.Equal(appendRetries, store.calls)

	// A later append starts over at seq zero of the same open segment;
	// the failed event left no trace.
	store.failures = 0
	s.Require().NoError(ledger.Append(s.ctx, inferEvent(1)))
	s.Require().Len(store.records, 1)
	s.Equal(uint64(0), store.records[0].Seq)
	s.Equal(int64(1), store.records[0].LatencyMS)
}

func (s *LedgerSuite) TestStoreFailureRecoversWithinRetries() {
	store := &flakyStore{failures: 1}
	ledger, _ := s.newLedger(store, 10)

	s.Require().NoError(ledger.Append(s.ctx, inferEvent(0)))
	s.Equal(2, store.calls)
	s.Len(store.records, 1)
}

func (s *LedgerSuite) TestEventKindsMatchWireNames() {
	s.Equal(Kind("ingest"), KindIngest)
	s.Equal(Kind("train-admit"), KindTrainAdmit)
	s.Equal(Kind("train-reject"), KindTrainReject)
	s.Equal(Kind("activate"), KindActivate)
	s.Equal(Kind("infer-success"), KindInferSuccess)
	s.Equal(Kind("infer-denied"), KindInferDenied)
	s.Equal(Kind("infer-error"), KindInferError)
}

// flakyStore fails the first N AppendEvent calls, then behaves.
type flakyStore struct {
	MemoryStore
	failures int
	calls    int
	records  []Record
}

func (f *flakyStore) AppendEvent(ctx context.Context, rec Record) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("disk on fire")
	}
	f.records = append(f.records, rec)
	return nil
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	signer, err := NewSigner()
	require.NoError(t, err)
	ledger := New(store, signer, Config{SegmentSize: 2}, discardLogger())

	for i := byte(0); i < 4; i++ {
		require.NoError(t, ledger.Append(ctx, inferEvent(i)))
	}
	require.NoError(t, store.Close())

	// Reopen and verify both sealed segments from disk alone.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	segs, err := reopened.Segments(ctx)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	for _, seg := range segs {
		records, err := reopened.EventsBySegment(ctx, seg.Index)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.NoError(t, Verify(seg, records))
	}
}

func TestMerkleRootProperties(t *testing.T) {
	leaf := func(b byte) [32]byte {
		var h [32]byte
		h[0] = b
		return h
	}

	t.Run("single leaf is its own root", func(t *testing.T) {
		require.Equal(t, leaf(7), merkleRoot([][32]byte{leaf(7)}))
	})

	t.Run("order sensitive", func(t *testing.T) {
		a := merkleRoot([][32]byte{leaf(1), leaf(2)})
		b := merkleRoot([][32]byte{leaf(2), leaf(1)})
		require.NotEqual(t, a, b)
	})

	t.Run("odd counts defined and stable", func(t *testing.T) {
		leaves := [][32]byte{leaf(1), leaf(2), leaf(3)}
		require.Equal(t, merkleRoot(leaves), merkleRoot(leaves))
		require.NotEqual(t, merkleRoot(leaves[:2]), merkleRoot(leaves))
	})

	t.Run("input slice not clobbered", func(t *testing.T) {
		leaves := [][32]byte{leaf(1), leaf(2), leaf(3), leaf(4)}
		before := append([][32]byte{}, leaves...)
		_ = merkleRoot(leaves)
		require.Equal(t, before, leaves)
	})
}

func TestLeafHashIsCanonical(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := inferEvent(1)
	a.ID = "fixed"
	a.TS = ts
	b := inferEvent(1)
	b.ID = "fixed"
	b.TS = ts

	ha, err := a.LeafHash()
	require.NoError(t, err)
	hb, err := b.LeafHash()
	require.NoError(t, err)
	require.Equal(t, ha, hb)

	b.WhyLogHash = "blake2b:feedface"
	hb, err = b.LeafHash()
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}
