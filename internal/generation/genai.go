package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIProvider generates marketing copy through the Google GenAI API.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIProvider{client: client, model: model}, nil
}

func (p *GenAIProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		// the provider declined to answer; not worth retrying
		return nil, ErrBlocked
	}

	content := resp.Text()
	if content == "" {
		return nil, ErrBlocked
	}

	return &Result{
		Content:   content,
		ImageURLs: extractAssetURLs(content),
	}, nil
}
