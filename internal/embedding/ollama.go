package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOllamaModel = "nomic-embed-text"

// ollamaDims lists the output size of common Ollama embedding models.
// Unknown models are assumed to match the default.
var ollamaDims = map[string]int{
	"nomic-embed-text":  768,
	"all-minilm":        384,
	"mxbai-embed-large": 1024,
}

// OllamaEmbedder calls the /api/embeddings endpoint of an Ollama server.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// NewOllamaEmbedder creates an embedder for an Ollama server. An empty
// baseURL falls back to $OLLAMA_HOST, then localhost.
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = defaultOllamaModel
	}
	dims, ok := ollamaDims[strings.SplitN(model, ":", 2)[0]]
	if !ok {
		dims = ollamaDims[defaultOllamaModel]
	}
	return &OllamaEmbedder{
		url:    strings.TrimRight(baseURL, "/") + "/api/embeddings",
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	payload, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", e.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama %s: status %d: %s", e.model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Embedding Vector `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama %s: decode: %w", e.model, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama %s: empty embedding", e.model)
	}
	return out.Embedding, nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }
