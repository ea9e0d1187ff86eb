package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonhttp "opportunity-recommender/internal/common/http"
)

// RemoteConfig configures an HTTP embedding API client.
type RemoteConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

func (c RemoteConfig) withDefaults(baseURL, model string, dim int) RemoteConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = model
	}
	if c.Dimension == 0 {
		c.Dimension = dim
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// OpenAI calls an OpenAI-compatible /embeddings endpoint. Ollama's native
// {"embedding": [...]} response shape is accepted as well.
type OpenAI struct {
	cfg    RemoteConfig
	client *commonhttp.Client
}

func NewOpenAI(cfg RemoteConfig) *OpenAI {
	cfg = cfg.withDefaults("https://api.openai.com/v1", "text-embedding-3-small", 1536)
	return &OpenAI{cfg: cfg, client: commonhttp.NewClient(cfg.Timeout)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Dimension() int { return o.cfg.Dimension }

type openAIRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embedding []float32 `json:"embedding"`
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	headers := map[string]string{}
	if o.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.cfg.APIKey
	}

	var resp openAIResponse
	err := o.client.PostJSON(ctx, o.cfg.BaseURL+"/embeddings", headers,
		openAIRequest{Input: text, Model: o.cfg.Model}, &resp)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	vec := resp.Embedding
	if len(resp.Data) > 0 {
		vec = resp.Data[0].Embedding
	}
	if err := checkVector(vec, o.cfg.Dimension); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	return vec, nil
}

// Gemini calls the Generative Language models/<model>:embedContent endpoint.
type Gemini struct {
	cfg    RemoteConfig
	client *commonhttp.Client
}

func NewGemini(cfg RemoteConfig) *Gemini {
	cfg = cfg.withDefaults("https://generativelanguage.googleapis.com/v1beta", "text-embedding-004", 768)
	cfg.Model = strings.TrimPrefix(cfg.Model, "models/")
	return &Gemini{cfg: cfg, client: commonhttp.NewClient(cfg.Timeout)}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Dimension() int { return g.cfg.Dimension }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []geminiPart `json:"parts"`
	} `json:"content"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	req := geminiRequest{Model: "models/" + g.cfg.Model}
	req.Content.Parts = []geminiPart{{Text: text}}

	url := fmt.Sprintf("%s/models/%s:embedContent", g.cfg.BaseURL, g.cfg.Model)
	headers := map[string]string{"x-goog-api-key": g.cfg.APIKey}

	var resp geminiResponse
	if err := g.client.PostJSON(ctx, url, headers, req, &resp); err != nil {
		return nil, fmt.Errorf("gemini embedContent: %w", err)
	}
	if err := checkVector(resp.Embedding.Values, g.cfg.Dimension); err != nil {
		return nil, fmt.Errorf("gemini embedContent: %w", err)
	}
	return resp.Embedding.Values, nil
}
