package vectorstore

import (
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meeting-rag/internal/model"
)

func TestFilter_Matches(t *testing.T) {
	md := model.Metadata{
		"meeting_id":  "m1",
		"chunk_index": float64(3),
		"start_time":  12.5,
		"title":       "Budget",
	}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty matches all", nil, true},
		{"eq string", Eq("meeting_id", "m1"), true},
		{"eq string miss", Eq("meeting_id", "m2"), false},
		{"eq int against float", Eq("chunk_index", 3), true},
		{"gt", Filter{{Field: "start_time", Op: OpGt, Value: 10}}, true},
		{"lte boundary", Filter{{Field: "start_time", Op: OpLte, Value: 12.5}}, true},
		{"lt miss", Filter{{Field: "start_time", Op: OpLt, Value: 12.5}}, false},
		{"ne", Filter{{Field: "title", Op: OpNe, Value: "Other"}}, true},
		{"ne missing field", Filter{{Field: "audio_file", Op: OpNe, Value: "x"}}, true},
		{"eq missing field", Eq("audio_file", "x"), false},
		{"in hit", In("meeting_id", []string{"m0", "m1"}), true},
		{"in miss", In("meeting_id", []string{"m0"}), false},
		{"in empty", In("meeting_id", nil), false},
		{"type mismatch", Eq("chunk_index", "3"), false},
		{"conjunction", Eq("meeting_id", "m1").And(Eq("title", "Budget")), true},
		{"conjunction miss", Eq("meeting_id", "m1").And(Eq("title", "Other")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Matches(md))
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	require.NoError(t, Eq("meeting_id", "m1").Validate())
	require.NoError(t, In("meeting_id", []string{"a"}).Validate())

	assert.Error(t, Eq("meeting_id'; DROP", "x").Validate())
	assert.Error(t, Filter{{Field: "title", Op: "like", Value: "x"}}.Validate())
	assert.Error(t, Filter{{Field: "title", Op: OpIn, Value: "x"}}.Validate())
	assert.Error(t, Filter{{Field: "title", Op: OpEq, Value: []string{"x"}}}.Validate())
}

func TestMilvusExpr(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want string
	}{
		{"empty", nil, `id != ""`},
		{"eq", Eq("meeting_id", "m1"), `metadata["meeting_id"] == "m1"`},
		{"quoted", Eq("title", `say "hi"`), `metadata["title"] == "say \"hi\""`},
		{"number", Filter{{Field: "start_time", Op: OpGte, Value: 30}}, `metadata["start_time"] >= 30`},
		{"in", In("meeting_id", []string{"a", "b"}), `metadata["meeting_id"] in ["a", "b"]`},
		{"and", Eq("meeting_id", "m1").And(Filter{{Field: "chunk_index", Op: OpLt, Value: 2}}),
			`metadata["meeting_id"] == "m1" and metadata["chunk_index"] < 2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := milvusExpr(tt.f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloatVectors(t *testing.T) {
	col := column.NewColumnFloatVector(milvusFieldEmbedding, 2, [][]float32{{1, 0}, {0.5, 0.25}})
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.25}}, floatVectors(col))
}
