package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/meeting-rag/internal/retrieval"
)

// User-facing answers for the non-generated outcomes.
const (
	NoResultsAnswer   = "Sorry, I could not find anything related to that question in the meeting notes."
	AnswerFailedReply = "Sorry, something went wrong while generating the answer."
	EmptyQueryReply   = "Please enter a question."
)

// Answerer generates an answer to query from formatted meeting notes.
type Answerer interface {
	Answer(ctx context.Context, query, notes string) (string, error)
}

// LLMAnswerer answers through a chat completion model.
type LLMAnswerer struct {
	llm retrieval.Completer
}

func NewLLMAnswerer(c retrieval.Completer) *LLMAnswerer {
	return &LLMAnswerer{llm: c}
}

const answerSystemPrompt = `You are an assistant that answers questions about meetings using their notes.

Instructions:
1. Answer ONLY with information found in the [Meeting notes] below.
2. If the notes contain nothing relevant, say clearly: "Sorry, I could not find that in the meeting notes."
3. Never guess or use outside knowledge.
4. Keep the answer clear and concise.
5. Take meeting titles and dates ONLY from the "Meeting:" and "Date:" fields. Titles or dates inside the content may be outdated; ignore them.`

func (a *LLMAnswerer) Answer(ctx context.Context, query, notes string) (string, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "[Meeting notes]:\n%s\n\n---\n\n[Question]:\n%s\n\n---\n\n[Answer]:", notes, query)
	return a.llm.Complete(ctx, answerSystemPrompt, user.String(), false)
}

// Response is the outcome of Ask. Failures are reported in the struct rather
// than as an error.
type Response struct {
	Success   bool                                `json:"success"`
	Answer    string                              `json:"answer"`
	Sources   []Source                            `json:"sources"`
	Error     string                              `json:"error,omitempty"`
	Fallbacks map[string]retrieval.FallbackReason `json:"fallbacks,omitempty"`
}

var errNoAnswerer = errors.New("no answer generator configured")

// Ask searches both collections and generates an answer.
func (s *Service) Ask(ctx context.Context, q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		s.metrics.ChatQuery("empty_query")
		return Response{Success: false, Answer: EmptyQueryReply, Sources: []Source{}, Error: "query is empty"}
	}
	s.log.Info().Str("query", q.Text).Str("meeting_id", q.MeetingID).Msg("chat query")

	res, err := s.Search(ctx, q)
	if err != nil {
		s.metrics.ChatQuery("search_failed")
		return Response{Success: false, Answer: AnswerFailedReply, Sources: []Source{}, Error: err.Error()}
	}
	if res.Total() == 0 {
		s.metrics.ChatQuery("no_results")
		return Response{Success: true, Answer: NoResultsAnswer, Sources: []Source{}, Fallbacks: res.Fallbacks}
	}

	if s.answerer == nil {
		s.metrics.ChatQuery("answer_failed")
		return Response{Success: false, Answer: AnswerFailedReply, Sources: []Source{}, Error: errNoAnswerer.Error()}
	}
	answer, err := s.answerer.Answer(ctx, q.Text, FormatContext(res))
	if err != nil {
		s.log.Error().Err(err).Msg("answer generation failed")
		s.metrics.ChatQuery("answer_failed")
		return Response{Success: false, Answer: AnswerFailedReply, Sources: []Source{}, Error: err.Error()}
	}

	s.log.Info().Int("answer_len", len(answer)).Msg("answer generated")
	s.metrics.ChatQuery("answered")
	return Response{Success: true, Answer: answer, Sources: Sources(res), Fallbacks: res.Fallbacks}
}
