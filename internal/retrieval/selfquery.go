package retrieval

import (
	"context"
	"fmt"
	"math"

	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// Attribute value types understood by the translator.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
)

// AttributeInfo declares one filterable metadata field.
type AttributeInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema tells a translator what a collection holds and what it may filter on.
type Schema struct {
	ContentDescription string          `json:"content_description"`
	Attributes         []AttributeInfo `json:"attributes"`
}

var schemas = map[string]Schema{
	model.CollectionChunks: {
		ContentDescription: "Semantically grouped chunks of meeting dialogue",
		Attributes: []AttributeInfo{
			{Name: model.FieldDialogueID, Type: TypeString, Description: "The unique identifier for the dialogue within the meeting"},
			{Name: model.FieldChunkIndex, Type: TypeInteger, Description: "The index of the chunk within the meeting"},
			{Name: model.FieldTitle, Type: TypeString, Description: "Meeting or note title. Filter on it when the query names a meeting"},
			{Name: model.FieldMeetingDate, Type: TypeString, Description: "When the meeting took place, stored as text such as '2025-11-07 10:00:00'. Exact match only"},
			{Name: model.FieldAudioFile, Type: TypeString, Description: "The name of the audio file for the meeting"},
			{Name: model.FieldStartTime, Type: TypeFloat, Description: "The start time of the chunk in seconds"},
			{Name: model.FieldEndTime, Type: TypeFloat, Description: "The end time of the chunk in seconds"},
			{Name: model.FieldSpeakerCount, Type: TypeInteger, Description: "The number of different speakers in the chunk"},
		},
	},
	model.CollectionSubtopic: {
		ContentDescription: "Summarized subtopics of meeting minutes",
		Attributes: []AttributeInfo{
			{Name: model.FieldMeetingTitle, Type: TypeString, Description: "Meeting or note title. Filter on it when the query names a meeting"},
			{Name: model.FieldMeetingDate, Type: TypeString, Description: "When the meeting took place, stored as text such as '2025-11-07 10:00:00'. Exact match only"},
			{Name: model.FieldAudioFile, Type: TypeString, Description: "The name of the audio file for the meeting"},
			{Name: model.FieldMainTopic, Type: TypeString, Description: "The main topic of the summarized subtopic"},
			{Name: model.FieldSummaryIndex, Type: TypeInteger, Description: "The index of the subtopic within the summary"},
		},
	},
}

// SchemaFor returns the self-query schema of a collection.
func SchemaFor(collection string) Schema {
	return schemas[collection]
}

// StructuredQuery is a translator's answer: a residual semantic query plus a
// metadata filter. Limit is optional.
type StructuredQuery struct {
	Query  string             `json:"query"`
	Filter vectorstore.Filter `json:"filter"`
	Limit  int                `json:"limit,omitempty"`
}

// Translator turns natural language into a StructuredQuery. Implementations
// are expected to be unreliable.
type Translator interface {
	Translate(ctx context.Context, query string, schema Schema) (*StructuredQuery, error)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(ctx context.Context, query string, schema Schema) (*StructuredQuery, error)

func (f TranslatorFunc) Translate(ctx context.Context, query string, schema Schema) (*StructuredQuery, error) {
	return f(ctx, query, schema)
}

func (s Schema) attribute(name string) (AttributeInfo, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeInfo{}, false
}

// Check reports whether every condition of f targets a declared attribute
// with a value of the declared type.
func (s Schema) Check(f vectorstore.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	for _, c := range f {
		attr, ok := s.attribute(c.Field)
		if !ok {
			return fmt.Errorf("field %q is not filterable", c.Field)
		}
		for _, v := range c.Values() {
			if !typeMatches(attr.Type, v) {
				return fmt.Errorf("field %q wants %s, got %v", c.Field, attr.Type, v)
			}
		}
		if attr.Type == TypeString && c.Op != vectorstore.OpEq && c.Op != vectorstore.OpNe && c.Op != vectorstore.OpIn {
			return fmt.Errorf("op %s not supported on string field %q", c.Op, c.Field)
		}
	}
	return nil
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		f, ok := number(v)
		return ok && f == math.Trunc(f)
	case TypeFloat:
		_, ok := number(v)
		return ok
	}
	return false
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
