package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/model"
)

const (
	milvusFieldID        = "id"
	milvusFieldContent   = "content"
	milvusFieldMetadata  = "metadata"
	milvusFieldEmbedding = "embedding"

	// matchAll selects every entity; Milvus rejects deletes without an expression.
	matchAll = `id != ""`
)

// MilvusConfig configures the Milvus backend.
type MilvusConfig struct {
	Address  string
	Username string
	Password string
	DBName   string
	// Prefix is prepended to the logical collection names.
	Prefix string
}

// MilvusStore maps each logical collection onto a Milvus collection with a
// VarChar primary key, a JSON metadata field and a COSINE-indexed vector.
type MilvusStore struct {
	client   *milvusclient.Client
	embedder embedding.Embedder
	prefix   string
}

// NewMilvusStore connects to Milvus and ensures both collections exist and are loaded.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig, emb embedding.Embedder) (*MilvusStore, error) {
	if emb == nil {
		return nil, fmt.Errorf("vector store needs an embedder")
	}
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}

	s := &MilvusStore{client: c, embedder: emb, prefix: cfg.Prefix}
	for _, name := range model.Collections {
		if err := s.ensureCollection(ctx, s.physical(name)); err != nil {
			c.Close(ctx)
			return nil, fmt.Errorf("ensure %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *MilvusStore) physical(collection string) string {
	return s.prefix + collection
}

func (s *MilvusStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithField(entity.NewField().
				WithName(milvusFieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(512)).
			WithField(entity.NewField().
				WithName(milvusFieldContent).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(65535)).
			WithField(entity.NewField().
				WithName(milvusFieldMetadata).
				WithDataType(entity.FieldTypeJSON)).
			WithField(entity.NewField().
				WithName(milvusFieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(s.embedder.Dims())))

		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idxTask, err := s.client.CreateIndex(ctx,
			milvusclient.NewCreateIndexOption(name, milvusFieldEmbedding, index.NewAutoIndex(entity.COSINE)))
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := idxTask.Await(ctx); err != nil {
			return fmt.Errorf("wait for index: %w", err)
		}
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return loadTask.Await(ctx)
}

func (s *MilvusStore) Close() error {
	return s.client.Close(context.Background())
}

func (s *MilvusStore) Upsert(ctx context.Context, collection string, docs []model.Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	vecs := make([][]float32, len(docs))
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
	return s.write(ctx, collection, docs, vecs)
}

// write upserts documents with precomputed vectors.
func (s *MilvusStore) write(ctx context.Context, collection string, docs []model.Document, vecs [][]float32) error {
	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	metas := make([][]byte, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		contents[i] = d.Content
		meta, err := marshalMetadata(d.Metadata)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", d.ID, err)
		}
		metas[i] = []byte(meta)
	}

	opt := milvusclient.NewColumnBasedInsertOption(s.physical(collection),
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnVarChar(milvusFieldContent, contents),
		column.NewColumnJSONBytes(milvusFieldMetadata, metas),
		column.NewColumnFloatVector(milvusFieldEmbedding, len(vecs[0]), vecs),
	)
	if _, err := s.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

func (s *MilvusStore) Get(ctx context.Context, collection string, f Filter) ([]model.Document, error) {
	docs, _, err := s.query(ctx, collection, f, false)
	return docs, err
}

func (s *MilvusStore) query(ctx context.Context, collection string, f Filter, withVectors bool) ([]model.Document, [][]float32, error) {
	if err := checkCollection(collection); err != nil {
		return nil, nil, err
	}
	expr, err := milvusExpr(f)
	if err != nil {
		return nil, nil, err
	}
	fields := []string{milvusFieldID, milvusFieldContent, milvusFieldMetadata}
	if withVectors {
		fields = append(fields, milvusFieldEmbedding)
	}

	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.physical(collection)).
		WithFilter(expr).
		WithOutputFields(fields...))
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}

	ids, err := varChars(rs.GetColumn(milvusFieldID))
	if err != nil {
		return nil, nil, err
	}
	contents, err := varChars(rs.GetColumn(milvusFieldContent))
	if err != nil {
		return nil, nil, err
	}
	metas, err := jsonBytes(rs.GetColumn(milvusFieldMetadata))
	if err != nil {
		return nil, nil, err
	}

	docs := make([]model.Document, len(ids))
	for i := range ids {
		md, err := unmarshalMetadata(string(metas[i]))
		if err != nil {
			return nil, nil, fmt.Errorf("metadata %s: %w", ids[i], err)
		}
		docs[i] = model.Document{ID: ids[i], Content: contents[i], Metadata: md}
	}

	var vecs [][]float32
	if withVectors {
		col, ok := rs.GetColumn(milvusFieldEmbedding).(*column.ColumnFloatVector)
		if !ok {
			return nil, nil, fmt.Errorf("milvus: missing %s column", milvusFieldEmbedding)
		}
		vecs = floatVectors(col)
	}
	return docs, vecs, nil
}

func (s *MilvusStore) Count(ctx context.Context, collection string, f Filter) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	expr, err := milvusExpr(f)
	if err != nil {
		return 0, err
	}
	rs, err := s.client.Query(ctx, milvusclient.NewQueryOption(s.physical(collection)).
		WithFilter(expr).
		WithOutputFields("count(*)"))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	col, ok := rs.GetColumn("count(*)").(*column.ColumnInt64)
	if !ok || len(col.Data()) == 0 {
		return 0, fmt.Errorf("milvus: unexpected count result")
	}
	return int(col.Data()[0]), nil
}

func (s *MilvusStore) UpdateMetadata(ctx context.Context, collection string, f Filter, field string, value any) (int, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	// Re-write stored vectors as-is; content is unchanged so no re-embedding.
	docs, vecs, err := s.query(ctx, collection, f, true)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	for i := range docs {
		md := docs[i].Metadata.Clone()
		md[field] = value
		docs[i].Metadata = md
	}
	if err := s.write(ctx, collection, docs, vecs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *MilvusStore) DeleteMatching(ctx context.Context, collection string, f Filter) (int, error) {
	if f.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	expr, err := milvusExpr(f)
	if err != nil {
		return 0, err
	}
	res, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.physical(collection)).WithExpr(expr))
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return int(res.DeleteCount), nil
}

func (s *MilvusStore) ClearCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.physical(collection)).WithExpr(matchAll))
	return err
}

func (s *MilvusStore) Search(ctx context.Context, p SearchParams) ([]Match, error) {
	if err := checkCollection(p.Collection); err != nil {
		return nil, err
	}
	if p.K <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", p.K)
	}
	expr, err := milvusExpr(p.Filter)
	if err != nil {
		return nil, err
	}
	qv, err := s.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	opt := milvusclient.NewSearchOption(s.physical(p.Collection), p.K, []entity.Vector{entity.FloatVector(qv)}).
		WithANNSField(milvusFieldEmbedding).
		WithOutputFields(milvusFieldID, milvusFieldContent, milvusFieldMetadata, milvusFieldEmbedding)
	if !p.Filter.IsEmpty() {
		opt = opt.WithFilter(expr)
	}
	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return nil, nil
	}

	rs := results[0]
	ids, err := varChars(rs.GetColumn(milvusFieldID))
	if err != nil {
		return nil, err
	}
	contents, err := varChars(rs.GetColumn(milvusFieldContent))
	if err != nil {
		return nil, err
	}
	metas, err := jsonBytes(rs.GetColumn(milvusFieldMetadata))
	if err != nil {
		return nil, err
	}
	var vecs [][]float32
	if col, ok := rs.GetColumn(milvusFieldEmbedding).(*column.ColumnFloatVector); ok {
		vecs = floatVectors(col)
	}

	matches := make([]Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		md, err := unmarshalMetadata(string(metas[i]))
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", ids[i], err)
		}
		m := Match{
			Document: model.Document{ID: ids[i], Content: contents[i], Metadata: md},
			Score:    clampScore(float64(rs.Scores[i])),
		}
		if i < len(vecs) {
			m.Vector = vecs[i]
		}
		matches = append(matches, m)
	}
	sortMatches(matches)
	return matches, nil
}

func floatVectors(col *column.ColumnFloatVector) [][]float32 {
	data := col.Data()
	out := make([][]float32, len(data))
	for i, fv := range data {
		out[i] = []float32(fv)
	}
	return out
}

func varChars(c column.Column) ([]string, error) {
	col, ok := c.(*column.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("milvus: expected varchar column, got %T", c)
	}
	return col.Data(), nil
}

func jsonBytes(c column.Column) ([][]byte, error) {
	col, ok := c.(*column.ColumnJSONBytes)
	if !ok {
		return nil, fmt.Errorf("milvus: expected json column, got %T", c)
	}
	return col.Data(), nil
}

// milvusExpr renders a filter as a Milvus boolean expression over the JSON
// metadata field. An empty filter selects everything.
func milvusExpr(f Filter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	if f.IsEmpty() {
		return matchAll, nil
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		path := fmt.Sprintf("%s[%q]", milvusFieldMetadata, c.Field)
		if c.Op == OpIn {
			values, _ := listValues(c.Value)
			lits := make([]string, 0, len(values))
			for _, v := range values {
				lit, err := milvusLiteral(v)
				if err != nil {
					return "", err
				}
				lits = append(lits, lit)
			}
			parts = append(parts, fmt.Sprintf("%s in [%s]", path, strings.Join(lits, ", ")))
			continue
		}
		lit, err := milvusLiteral(c.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", path, milvusOps[c.Op], lit))
	}
	return strings.Join(parts, " and "), nil
}

var milvusOps = map[Op]string{OpEq: "==", OpNe: "!=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}

func milvusLiteral(v any) (string, error) {
	sv, ok := scalar(v)
	if !ok {
		return "", fmt.Errorf("unsupported filter value %T", v)
	}
	switch x := sv.(type) {
	case string:
		return strconv.Quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	b, err := json.Marshal(sv)
	return string(b), err
}
