package causal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// Embedder generates vector embeddings for node text
type Embedder interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dimensions() int
}

// GetEmbedder returns the embedder for node similarity search.
//
// Local embeddings are the default: node names and descriptions are short
// and relationship storage must work offline. Set XYLEM_EMBEDDINGS=openai
// (with OPENAI_API_KEY) to use API embeddings instead.
func GetEmbedder() Embedder {
	if os.Getenv("XYLEM_EMBEDDINGS") == "openai" {
		if embedder, err := NewOpenAIEmbedder(); err == nil {
			fmt.Fprintln(os.Stderr, "🧠 Using OpenAI embeddings")
			return NewFallbackEmbedder(embedder)
		} else {
			fmt.Fprintf(os.Stderr, "⚠️  OpenAI embedder unavailable (%v), using local\n", err)
		}
	}
	return NewLocalEmbedder()
}

// FallbackEmbedder wraps a primary embedder and falls back to local on errors
// (e.g. expired API keys). Once the primary fails it stays on the fallback
// for the rest of the session.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
	failed   bool
}

func NewFallbackEmbedder(primary Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, fallback: NewLocalEmbedder()}
}

func (f *FallbackEmbedder) Embed(text string) ([]float32, error) {
	if f.failed {
		return f.fallback.Embed(text)
	}
	result, err := f.primary.Embed(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Primary embedder failed (%v), falling back to local\n", err)
		f.failed = true
		return f.fallback.Embed(text)
	}
	return result, nil
}

func (f *FallbackEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	if f.failed {
		return f.fallback.EmbedBatch(texts)
	}
	result, err := f.primary.EmbedBatch(texts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Primary embedder failed (%v), falling back to local\n", err)
		f.failed = true
		return f.fallback.EmbedBatch(texts)
	}
	return result, nil
}

func (f *FallbackEmbedder) Dimensions() int {
	if f.failed {
		return f.fallback.Dimensions()
	}
	return f.primary.Dimensions()
}

// OpenAIEmbedder uses OpenAI's embedding API
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      "text-embedding-3-small",
		dimensions: 1536,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *OpenAIEmbedder) Embed(text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": e.model,
		"input": texts,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.openai.com/v1/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// LocalEmbedder produces on-device embeddings via feature hashing. Node
// names and descriptions are short phrases, so word n-grams plus character
// trigrams are enough to cluster related nodes without an API.
type LocalEmbedder struct {
	dimensions int
	ngramSizes []int
}

func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{
		dimensions: 256,
		ngramSizes: []int{1, 2},
	}
}

func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	return e.generate(text), nil
}

func (e *LocalEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.generate(text)
	}
	return embeddings, nil
}

func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *LocalEmbedder) generate(text string) []float32 {
	embedding := make([]float32, e.dimensions)
	text = strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return embedding
	}

	// Word n-grams in the first 80% of dimensions
	wordDims := e.dimensions * 4 / 5
	for _, n := range e.ngramSizes {
		weight := 1.0 / float32(n)
		for i := 0; i <= len(words)-n; i++ {
			ngram := strings.Join(words[i:i+n], " ")
			h1 := hashString(ngram)
			h2 := hashString(ngram + "_alt")
			embedding[h1%wordDims] += weight
			embedding[h2%wordDims] -= weight * 0.5
		}
	}

	// Character trigrams in the remainder, tolerant of spelling variants
	charDims := e.dimensions - wordDims
	for i := 0; i+3 <= len(text); i++ {
		h := hashString("c_" + text[i:i+3])
		embedding[wordDims+h%charDims] += 0.2
	}

	normalize(embedding)
	return embedding
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) > 1 {
			words = append(words, w)
		}
	}
	return words
}

func hashString(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}

func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range v {
			v[i] /= norm
		}
	}
}

// cosineSimilarity computes similarity between two vectors for the
// linear-scan fallback when sqlite-vec is unavailable.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
