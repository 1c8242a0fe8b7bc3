package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"deltagate/internal/domain"
)

// PostgresStore persists the ledger in PostgreSQL. Events and segments are
// insert-only tables; there is no UPDATE or DELETE statement in this file
// on purpose.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore dials the database and verifies connectivity.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the ledger tables when absent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_events (
			seq           BIGINT PRIMARY KEY,
			segment_index BIGINT NOT NULL,
			merkle_root   TEXT NOT NULL,
			id            TEXT NOT NULL,
			ts            TIMESTAMPTZ NOT NULL,
			event         TEXT NOT NULL,
			dataset_id    TEXT NOT NULL DEFAULT '',
			model_id      TEXT NOT NULL DEFAULT '',
			version       TEXT NOT NULL DEFAULT '',
			purpose_id    TEXT NOT NULL DEFAULT '',
			subject_hash  TEXT NOT NULL DEFAULT '',
			lat_ms        BIGINT NOT NULL DEFAULT 0,
			whylog_hash   TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS ledger_events_segment_idx
			ON ledger_events (segment_index, seq);
		CREATE TABLE IF NOT EXISTS ledger_segments (
			index_no   BIGINT PRIMARY KEY,
			id         TEXT NOT NULL,
			count      INT NOT NULL,
			first_seq  BIGINT NOT NULL,
			last_seq   BIGINT NOT NULL,
			root       TEXT NOT NULL,
			signature  TEXT NOT NULL,
			public_key TEXT NOT NULL,
			sealed_at  TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events
			(seq, segment_index, merkle_root, id, ts, event, dataset_id,
			 model_id, version, purpose_id, subject_hash, lat_ms, whylog_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.Seq, rec.SegmentIndex, rec.MerkleRoot, rec.ID, rec.TS,
		string(rec.Kind), string(rec.DatasetID), string(rec.ModelID),
		string(rec.Version), string(rec.PurposeID), string(rec.SubjectHash),
		rec.LatencyMS, rec.WhyLogHash,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendSegment(ctx context.Context, seg Segment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_segments
			(index_no, id, count, first_seq, last_seq, root, signature,
			 public_key, sealed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		seg.Index, seg.ID, seg.Count, seg.FirstSeq, seg.LastSeq,
		seg.Root, seg.Signature, seg.PublicKeyHex, seg.SealedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger segment: %w", err)
	}
	return nil
}

func (s *PostgresStore) EventsBySegment(ctx context.Context, segmentIndex uint64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, segment_index, merkle_root, id, ts, event, dataset_id,
		       model_id, version, purpose_id, subject_hash, lat_ms, whylog_hash
		FROM ledger_events
		WHERE segment_index = $1
		ORDER BY seq`,
		segmentIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var kind, datasetID, modelID, version, purposeID, subjectHash string
		if err := rows.Scan(
			&rec.Seq, &rec.SegmentIndex, &rec.MerkleRoot, &rec.ID, &rec.TS,
			&kind, &datasetID, &modelID, &version, &purposeID, &subjectHash,
			&rec.LatencyMS, &rec.WhyLogHash,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.DatasetID = domain.DatasetID(datasetID)
		rec.ModelID = domain.ModelID(modelID)
		rec.Version = domain.VersionName(version)
		rec.PurposeID = domain.PurposeID(purposeID)
		rec.SubjectHash = domain.SubjectHash(subjectHash)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Segments(ctx context.Context) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT index_no, id, count, first_seq, last_seq, root, signature,
		       public_key, sealed_at
		FROM ledger_segments
		ORDER BY index_no`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(
			&seg.Index, &seg.ID, &seg.Count, &seg.FirstSeq, &seg.LastSeq,
			&seg.Root, &seg.Signature, &seg.PublicKeyHex, &seg.SealedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger segment: %w", err)
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger segments: %w", err)
	}
	return out, nil
}
