package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps both collections in a single SQLite table and scores
// candidates by brute-force cosine similarity.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewSQLiteStore opens or creates a vector database at the given path.
func NewSQLiteStore(dbPath string, emb embedding.Embedder) (*SQLiteStore, error) {
	if emb == nil {
		return nil, fmt.Errorf("vector store needs an embedder")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, embedder: emb}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS vectors (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  BLOB NOT NULL,
			dims       INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_vectors_meeting
			ON vectors(collection, json_extract(metadata, '$.meeting_id'));
	`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, docs []model.Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	// Embed before opening the transaction; providers may be remote.
	vecs := make([]embedding.Vector, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d has no id", i)
		}
		v, err := s.embedder.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("embed %s: %w", d.ID, err)
		}
		vecs[i] = v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (collection, id, content, metadata, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, d := range docs {
		meta, err := marshalMetadata(d.Metadata)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID, d.Content, meta,
			embedding.Encode(vecs[i]), len(vecs[i]), now); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, collection string, f Filter) ([]model.Document, error) {
	rows, err := s.query(ctx, "id, content, metadata", collection, f)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var meta string
		if err := rows.Scan(&d.ID, &d.Content, &meta); err != nil {
			return nil, err
		}
		if d.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", d.ID, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, collection string, f Filter) (int, error) {
	where, args, err := whereClause(collection, f)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors WHERE "+where, args...).Scan(&n)
	return n, err
}

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, collection string, f Filter, field string, value any) (int, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	docs, err := s.Get(ctx, collection, f)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range docs {
		md := d.Metadata.Clone()
		md[field] = value
		meta, err := marshalMetadata(md)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE vectors SET metadata = ?, updated_at = ? WHERE collection = ? AND id = ?",
			meta, now, collection, d.ID); err != nil {
			return 0, fmt.Errorf("update %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *SQLiteStore) DeleteMatching(ctx context.Context, collection string, f Filter) (int, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	where, args, err := whereClause(collection, f)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE "+where, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) ClearCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM vectors WHERE collection = ?", collection)
	return err
}

func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]Match, error) {
	if p.K <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", p.K)
	}
	qv, err := s.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.query(ctx, "id, content, metadata, embedding", p.Collection, p.Filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var meta string
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Content, &meta, &blob); err != nil {
			return nil, err
		}
		if m.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", m.ID, err)
		}
		if m.Vector, err = embedding.Decode(blob); err != nil {
			return nil, fmt.Errorf("embedding %s: %w", m.ID, err)
		}
		m.Score = clampScore(embedding.CosineSimilarity(qv, m.Vector))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortMatches(matches)
	if len(matches) > p.K {
		matches = matches[:p.K]
	}
	return matches, nil
}

func (s *SQLiteStore) query(ctx context.Context, cols, collection string, f Filter) (*sql.Rows, error) {
	where, args, err := whereClause(collection, f)
	if err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, "SELECT "+cols+" FROM vectors WHERE "+where, args...)
}

// sortMatches orders by score descending, then id, so equal scores are stable.
func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].ID < ms[j].ID
	})
}

func whereClause(collection string, f Filter) (string, []any, error) {
	if err := checkCollection(collection); err != nil {
		return "", nil, err
	}
	if err := f.Validate(); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = ?"}
	args := []any{collection}
	for _, c := range f {
		// Field names are validated against a strict pattern above.
		path := fmt.Sprintf("json_extract(metadata, '$.%s')", c.Field)
		switch c.Op {
		case OpIn:
			values, _ := listValues(c.Value)
			if len(values) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			clauses = append(clauses, path+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
			for _, v := range values {
				args = append(args, sqlValue(v))
			}
		case OpNe:
			clauses = append(clauses, "("+path+" IS NULL OR "+path+" != ?)")
			args = append(args, sqlValue(c.Value))
		default:
			clauses = append(clauses, path+" "+sqlOps[c.Op]+" ?")
			args = append(args, sqlValue(c.Value))
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

var sqlOps = map[Op]string{OpEq: "=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}

func sqlValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func marshalMetadata(m model.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalMetadata(s string) (model.Metadata, error) {
	m := model.Metadata{}
	if s == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(s), &m)
	return m, err
}
