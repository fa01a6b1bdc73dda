package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolusage/ml"
)

const (
	DefaultOllamaURL = "http://localhost:11434/api/generate"
	DefaultModel     = "llama3.2"
)

// OllamaExplainer asks a locally hosted model to explain a usage prediction in
// plain language.
type OllamaExplainer struct {
	urls      []string
	model     string
	maxTokens int
	client    *http.Client
	logger    *zap.Logger
}

// NewOllamaExplainer targets url first and falls back to DefaultOllamaURL when
// url points elsewhere.
func NewOllamaExplainer(url, model string, timeout time.Duration, maxTokens int, logger *zap.Logger) *OllamaExplainer {
	if url == "" {
		url = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	urls := []string{url}
	if url != DefaultOllamaURL {
		urls = append(urls, DefaultOllamaURL)
	}
	return &OllamaExplainer{
		urls:      urls,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Explain never fails: when no endpoint answers, the returned text says so.
func (o *OllamaExplainer) Explain(ctx context.Context, c ml.Case, result ml.PredictionResult) string {
	text, err := o.Generate(ctx, BuildExplanationPrompt(c, result))
	if err != nil {
		o.logger.Warn("explanation unavailable", zap.Error(err))
		return fmt.Sprintf("(Could not get explanation from Llama: %v. Ensure Ollama is running and model '%s' is pulled.)", err, o.model)
	}
	return text
}

// Generate sends prompt to each configured endpoint in turn and returns the
// first successful response.
func (o *OllamaExplainer) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{NumPredict: o.maxTokens},
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, url := range o.urls {
		text, err := o.post(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		o.logger.Debug("ollama endpoint failed", zap.String("url", url), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (o *OllamaExplainer) post(ctx context.Context, url string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return "", fmt.Errorf("ollama api error: %s", apiErr.Error)
		}
		return "", fmt.Errorf("ollama api returned status %d", resp.StatusCode)
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	text := strings.TrimSpace(apiResp.Response)
	if text == "" {
		return "", errors.New("ollama api returned empty response")
	}
	return text, nil
}

// BuildExplanationPrompt asks for a short plain-language justification of result.
func BuildExplanationPrompt(c ml.Case, result ml.PredictionResult) string {
	return fmt.Sprintf(`You are a medical data assistant.

I have a model that predicts how many times a surgical tool will be used in an operation.

Given this case:

- Operation type: %s
- Tool: %s
- Surgery duration (minutes): %d
- Complexity (1-5): %d
- Surgeon experience (years): %d

The model predicts that the tool will be used approximately %d times.

In 4-6 simple sentences, explain **why** this might be reasonable,
based on the duration, complexity, and experience.
Do not mention that this is synthetic or a demo. Use simple language suitable for doctors and OR staff.
`, c.OperationType, c.ToolName, c.SurgeryDurationMin, c.ComplexityScore, c.SurgeonExperienceYears, result.PredictedUsage)
}

type generateOptions struct {
	NumPredict int `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}
