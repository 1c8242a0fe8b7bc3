// Package ledger is the append-only, Merkle-chained, signed audit log.
// Exactly one event is appended per gated operation; sealed segments are
// immutable and carry a signature over their Merkle root so any later
// mutation of stored events is detectable.
package ledger

import (
	"encoding/hex"
	"time"

	"deltagate/internal/domain"
	"deltagate/pkg/canonjson"
	"deltagate/pkg/status"
)

// Kind is the audit event kind.
type Kind string

const (
	KindIngest       Kind = "ingest"
	KindTrainAdmit   Kind = "train-admit"
	KindTrainReject  Kind = "train-reject"
	KindActivate     Kind = "activate"
	KindInferSuccess Kind = "infer-success"
	KindInferDenied  Kind = "infer-denied"
	KindInferError   Kind = "infer-error"
)

// Event is what domain logic emits. Immutable after append; raw payloads
// never appear here, only the WhyLog hash.
type Event struct {
	ID          string             `json:"id"`
	TS          time.Time          `json:"ts"`
	Kind        Kind               `json:"event"`
	DatasetID   domain.DatasetID   `json:"dataset_id,omitempty"`
	ModelID     domain.ModelID     `json:"model_id,omitempty"`
	Version     domain.VersionName `json:"version,omitempty"`
	PurposeID   domain.PurposeID   `json:"purpose_id,omitempty"`
	SubjectHash domain.SubjectHash `json:"subject_hash,omitempty"`
	LatencyMS   int64              `json:"lat_ms,omitempty"`
	WhyLogHash  string             `json:"whylog_hash,omitempty"`
}

// LeafHash is the Merkle leaf for the event: BLAKE2b-256 over the canonical
// JSON encoding. The same hash family is used for WhyLog digests so the
// whole provenance chain shares one function.
func (e Event) LeafHash() ([32]byte, error) {
	sum, err := canonjson.Sum(e)
	if err != nil {
		return [32]byte{}, status.Wrap(status.CodeInternal, "event_hash_failed", err)
	}
	return sum, nil
}

// Record is the persisted form: the event plus its position and the running
// Merkle root over the segment up to and including this event. One record
// is written atomically per line.
type Record struct {
	Event
	Seq          uint64 `json:"seq"`
	SegmentIndex uint64 `json:"segment"`
	MerkleRoot   string `json:"merkle_root"`
}

// Segment is a sealed batch of consecutive events. Root is the Merkle root
// over the leaf hashes in append order; Signature is an Ed25519 signature
// over the raw root bytes.
type Segment struct {
	ID           string    `json:"id"`
	Index        uint64    `json:"index"`
	Count        int       `json:"count"`
	FirstSeq     uint64    `json:"first_seq"`
	LastSeq      uint64    `json:"last_seq"`
	Root         string    `json:"root"`
	Signature    string    `json:"signature"`
	PublicKeyHex string    `json:"public_key"`
	SealedAt     time.Time `json:"sealed_at"`
}

func rootHex(root [32]byte) string {
	return hex.EncodeToString(root[:])
}
