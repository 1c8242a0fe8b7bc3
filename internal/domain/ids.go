package domain

import (
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"deltagate/pkg/status"
)

// DatasetID is an opaque identifier derived from the hash of the ingested
// content. Invariant: the value matches `ds-<16 lowercase hex>`.
//
// IDs are hash-derived strings rather than sequence numbers so they stay
// stable under distributed extraction without renumbering.
type DatasetID string

// ModelID is an opaque identifier for a logical model family, derived from
// the dataset, training config and model kind. Form: `<kind-label>-<16 hex>`.
type ModelID string

// VersionName labels one trained version of a model, e.g. "v1756712345123".
type VersionName string

var (
	datasetIDPattern = regexp.MustCompile(`^ds-[0-9a-f]{16}$`)
	modelIDPattern   = regexp.MustCompile(`^[a-z0-9-]+-[0-9a-f]{16}$`)
	versionPattern   = regexp.MustCompile(`^v[0-9]+$`)
)

// ParseDatasetID validates external input at trust boundaries. Direct casting
// bypasses validation.
func ParseDatasetID(s string) (DatasetID, error) {
	if !utf8.ValidString(s) {
		return "", status.Invalid("dataset_id_not_utf8")
	}
	if !datasetIDPattern.MatchString(s) {
		return "", status.Invalid("dataset_id_malformed")
	}
	return DatasetID(s), nil
}

// ParseModelID validates external input at trust boundaries.
func ParseModelID(s string) (ModelID, error) {
	if !utf8.ValidString(s) {
		return "", status.Invalid("model_id_not_utf8")
	}
	if !modelIDPattern.MatchString(s) {
		return "", status.Invalid("model_id_malformed")
	}
	return ModelID(s), nil
}

// ParseVersionName accepts an optional version label. Empty and "latest" both
// mean "newest admitted version" and return the zero value.
func ParseVersionName(s string) (VersionName, error) {
	if s == "" || s == "latest" {
		return "", nil
	}
	if !versionPattern.MatchString(s) {
		return "", status.Invalid("version_malformed")
	}
	return VersionName(s), nil
}

func (d DatasetID) String() string { return string(d) }

func (m ModelID) String() string { return string(m) }

func (v VersionName) String() string { return string(v) }

// IsZero reports whether the version label is the "latest" placeholder.
func (v VersionName) IsZero() bool { return v == "" }

// NewDatasetID derives a dataset identifier from a content digest.
func NewDatasetID(digest [32]byte) DatasetID {
	return DatasetID("ds-" + hex.EncodeToString(digest[:8]))
}

// NewModelID derives a model identifier from a kind label and digest.
func NewModelID(kindLabel string, digest [32]byte) ModelID {
	return ModelID(kindLabel + "-" + hex.EncodeToString(digest[:8]))
}

// SubjectHash is the only form in which a data subject identifier is retained
// or persisted. Raw subject IDs never reach the ledger.
type SubjectHash string

// HashSubject derives the pseudonymous subject hash.
func HashSubject(subjectID string) SubjectHash {
	sum := blake2b.Sum256([]byte("subject:" + subjectID))
	return SubjectHash("sub-" + hex.EncodeToString(sum[:12]))
}

func (s SubjectHash) String() string { return string(s) }

// PurposeID names why data is processed. Purposes are free-form tokens owned
// by the consent oracle; the core only requires them to be non-empty,
// lowercase and UTF-8 clean.
type PurposeID string

// ParsePurposeID validates a purpose token at trust boundaries.
func ParsePurposeID(s string) (PurposeID, error) {
	if s == "" {
		return "", status.Invalid("purpose_empty")
	}
	if !utf8.ValidString(s) {
		return "", status.Invalid("purpose_not_utf8")
	}
	if s != strings.ToLower(s) || strings.ContainsAny(s, " \t\n") {
		return "", status.Invalid("purpose_malformed")
	}
	return PurposeID(s), nil
}

func (p PurposeID) String() string { return string(p) }
