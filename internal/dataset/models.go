// Package dataset ingests training data sources and keeps their metadata.
// Raw rows are hashed and counted during ingest; only the digest, the row
// count and the declared schema are retained.
package dataset

import (
	"context"
	"encoding/json"

	"deltagate/internal/domain"
)

// DefaultRetentionDays applies when the ingest request does not declare a
// retention period.
const DefaultRetentionDays = 30

// Dataset is the stored metadata for one ingested source.
type Dataset struct {
	ID            domain.DatasetID `json:"dataset_id"`
	Schema        json.RawMessage  `json:"schema"`
	ContentHash   string           `json:"content_hash"`
	Rows          uint64           `json:"rows"`
	RetentionDays int              `json:"retention_days"`
	CreatedMS     int64            `json:"created_ms"`
}

// Datasheet is the exported description of a dataset.
type Datasheet struct {
	DatasetID     domain.DatasetID `json:"dataset_id"`
	Schema        json.RawMessage  `json:"schema"`
	RetentionDays int              `json:"retention_days"`
	Rows          uint64           `json:"rows"`
	CreatedMS     int64            `json:"created_ms"`
}

// Store persists dataset metadata.
type Store interface {
	Put(ctx context.Context, d Dataset) error
	Get(ctx context.Context, id domain.DatasetID) (Dataset, error)
}
