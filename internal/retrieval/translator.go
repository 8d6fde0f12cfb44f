package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer sends one prompt to a language model. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// LLMTranslator asks a language model for a StructuredQuery in JSON.
type LLMTranslator struct {
	llm Completer
}

func NewLLMTranslator(c Completer) *LLMTranslator {
	return &LLMTranslator{llm: c}
}

const translatorSystemPrompt = `You convert a user's question into a structured search request over a collection of documents.
Reply with a single JSON object of the form:
{"query": string, "filter": [{"field": string, "op": string, "value": any}], "limit": integer}

Rules:
- "query" holds what to match against document contents. Remove anything already expressed by the filter.
- "filter" may only use the attributes listed below, with values of the declared type.
- "op" is one of eq, ne, gt, gte, lt, lte, in. String attributes only allow eq, ne and in. "in" takes a list.
- Use an empty filter list when the question names no attribute.
- "limit" is 0 unless the question asks for a specific number of results.`

func (t *LLMTranslator) Translate(ctx context.Context, query string, schema Schema) (*StructuredQuery, error) {
	attrs, err := json.MarshalIndent(schema.Attributes, "", "  ")
	if err != nil {
		return nil, err
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Document contents: %s\n\n", schema.ContentDescription)
	fmt.Fprintf(&user, "Filterable attributes:\n%s\n\n", attrs)
	fmt.Fprintf(&user, "Question: %s", query)

	reply, err := t.llm.Complete(ctx, translatorSystemPrompt, user.String(), true)
	if err != nil {
		return nil, fmt.Errorf("translate query: %w", err)
	}
	return parseStructuredQuery(reply)
}

func parseStructuredQuery(reply string) (*StructuredQuery, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var sq StructuredQuery
	if err := json.Unmarshal([]byte(reply), &sq); err != nil {
		return nil, fmt.Errorf("parse structured query: %w", err)
	}
	if sq.Limit < 0 {
		sq.Limit = 0
	}
	return &sq, nil
}
