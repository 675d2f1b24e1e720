package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// perCallTimeout bounds a single LLM extraction call to an external API
// (OpenAI). Separate from any caller-supplied context deadline so one slow
// call can't block an entire ingest batch.
const perCallTimeout = 15 * time.Second

// ollamaPerCallTimeout is higher than perCallTimeout to absorb local-model
// cold start (first call pays the disk-load penalty) and CPU inference
// latency on small machines.
const ollamaPerCallTimeout = 90 * time.Second

// extractionPromptPreamble asks for one candidate per line in a strict bracketed
// format, parsed by parseExtractionResponse below.
const extractionPromptPreamble = `You extract atomic factual claims from a user's message for a long-term memory system.

For each distinct fact the user states about themselves, output one line in exactly this format:

[subject] [predicate] [object] [atom_type]

Rules:
- subject is almost always "user".
- predicate must be a short snake_case verb phrase (e.g. likes, works_at, trusts, skilled_in).
- object is the thing the predicate applies to, verbatim from the text where possible.
- atom_type is one of: ENTITY, AFFILIATION, SOCIAL, SKILL, PREFERENCE, BELIEF, EVENT, STATE, HYPOTHESIS, INVARIANT.
- Output nothing else: no preamble, no explanation, no numbering, no markdown.
- If the message contains no extractable fact, output a single line: NONE

Message:
`

// parseExtractionResponse parses one candidate per line in the
// "[subject] [predicate] [object] [atom_type]" format. Lines that don't
// parse cleanly are skipped rather than failing the whole call — a partial
// extraction is still useful, per the rule stage's own best-effort drop
// semantics in Model.Extract.
func parseExtractionResponse(response string) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "*_- ")
		if line == "" || strings.EqualFold(line, "NONE") || strings.EqualFold(line, "[NONE]") {
			continue
		}
		fields, ok := parseBracketedFields(line)
		if !ok || len(fields) != 4 {
			continue
		}
		out = append(out, Candidate{
			Subject:   fields[0],
			Predicate: fields[1],
			Object:    fields[2],
			AtomType:  strings.ToUpper(fields[3]),
		})
	}
	return out
}

// parseBracketedFields splits a line of the form "[a] [b] [c] [d]" into its
// bracketed fields. Returns ok=false if the line isn't bracketed throughout.
func parseBracketedFields(line string) ([]string, bool) {
	var fields []string
	for len(line) > 0 {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if line[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(line, ']')
		if end < 0 {
			return nil, false
		}
		fields = append(fields, strings.TrimSpace(line[1:end]))
		line = line[end+1:]
	}
	return fields, len(fields) > 0
}

// OllamaExtractor extracts candidates using a local Ollama chat model.
type OllamaExtractor struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaExtractor creates an extractor that calls Ollama's chat API.
func NewOllamaExtractor(baseURL, model string) *OllamaExtractor {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaExtractor{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: ollamaPerCallTimeout + 5*time.Second,
		},
	}
}

type ollamaChatRequest struct {
	Model     string              `json:"model"`
	Messages  []ollamaChatMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (e *OllamaExtractor) Extract(ctx context.Context, text string) ([]Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, ollamaPerCallTimeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model: e.model,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: extractionPromptPreamble + text},
		},
		Stream:    false,
		KeepAlive: "72h",
	})
	if err != nil {
		return nil, fmt.Errorf("ollama extractor: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama extractor: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama extractor: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama extractor: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama extractor: decode response: %w", err)
	}

	return parseExtractionResponse(result.Message.Content), nil
}

// OpenAIExtractor extracts candidates using the OpenAI chat completions API.
type OpenAIExtractor struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIExtractor creates an extractor that calls OpenAI's chat completions API.
func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIExtractor{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *OpenAIExtractor) Extract(ctx context.Context, text string) ([]Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	body, err := json.Marshal(openAIChatRequest{
		Model: e.model,
		Messages: []openAIChatMessage{
			{Role: "user", Content: extractionPromptPreamble + text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai extractor: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai extractor: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai extractor: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("openai extractor: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai extractor: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai extractor: no choices in response")
	}

	return parseExtractionResponse(result.Choices[0].Message.Content), nil
}

// NoopExtractor returns no candidates. It is the default fallback when no
// LLM is configured: unmatched utterances simply produce no atoms rather
// than failing the call.
type NoopExtractor struct{}

func (NoopExtractor) Extract(_ context.Context, _ string) ([]Candidate, error) {
	return nil, nil
}
