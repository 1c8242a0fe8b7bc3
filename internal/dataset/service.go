package dataset

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/blake2b"

	"deltagate/internal/domain"
	"deltagate/internal/ledger"
	"deltagate/pkg/canonjson"
	"deltagate/pkg/status"
)

var ingestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "deltagate_dataset_ingests_total",
	Help: "Dataset ingest outcomes",
}, []string{"outcome"})

// Service ingests sources and answers datasheet exports. Every successful
// ingest appends one ledger event.
type Service struct {
	store  Store
	audit  *ledger.Ledger
	logger *slog.Logger
}

func NewService(store Store, audit *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{store: store, audit: audit, logger: logger}
}

// IngestFile hashes and counts the rows of the file at path. The content is
// never stored; only metadata survives ingest.
func (s *Service) IngestFile(ctx context.Context, path string, schemaJSON string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return Dataset{}, status.Wrap(status.CodeInternal, "dataset_source_unreadable", err)
	}
	defer f.Close()
	return s.Ingest(ctx, f, schemaJSON)
}

// Ingest streams rows from r, hashing line by line so memory stays bounded
// regardless of source size.
func (s *Service) Ingest(ctx context.Context, r io.Reader, schemaJSON string) (Dataset, error) {
	schema, err := parseSchema(schemaJSON)
	if err != nil {
		ingestsTotal.WithLabelValues("invalid").Inc()
		return Dataset{}, err
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return Dataset{}, status.Wrap(status.CodeInternal, "dataset_hash_init_failed", err)
	}

	var rows uint64
	reader := bufio.NewReader(r)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			hasher.Write(line)
			rows++
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			ingestsTotal.WithLabelValues("error").Inc()
			return Dataset{}, status.Wrap(status.CodeInternal, "dataset_read_failed", readErr)
		}
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))

	d := Dataset{
		ID:            domain.NewDatasetID(digest),
		Schema:        schema,
		ContentHash:   "blake2b:" + hex.EncodeToString(digest[:]),
		Rows:          rows,
		RetentionDays: DefaultRetentionDays,
		CreatedMS:     time.Now().UnixMilli(),
	}

	if err := s.store.Put(ctx, d); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return Dataset{}, status.Wrap(status.CodeInternal, "dataset_store_failed", err)
	}

	if err := s.audit.Append(ctx, ledger.Event{
		Kind:      ledger.KindIngest,
		DatasetID: d.ID,
	}); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return Dataset{}, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "dataset ingested",
			"dataset_id", d.ID.String(),
			"rows", d.Rows,
		)
	}
	ingestsTotal.WithLabelValues("ok").Inc()
	return d, nil
}

// ExportDatasheet renders the canonical datasheet JSON for a known dataset.
func (s *Service) ExportDatasheet(ctx context.Context, id domain.DatasetID) (string, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	sheet := Datasheet{
		DatasetID:     d.ID,
		Schema:        d.Schema,
		RetentionDays: d.RetentionDays,
		Rows:          d.Rows,
		CreatedMS:     d.CreatedMS,
	}
	out, err := canonjson.Marshal(sheet)
	if err != nil {
		return "", status.Wrap(status.CodeInternal, "datasheet_encode_failed", err)
	}
	return string(out), nil
}

// parseSchema requires the declared schema to be a JSON object. Arbitrary
// text is rejected rather than stored verbatim.
func parseSchema(schemaJSON string) (json.RawMessage, error) {
	if schemaJSON == "" {
		return nil, status.Invalid("schema_missing")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &obj); err != nil {
		return nil, status.Invalid("schema_unparseable")
	}
	return json.RawMessage(schemaJSON), nil
}
