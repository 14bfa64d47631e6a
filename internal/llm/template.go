package llm

import "context"

// TemplateClient never generates text. The probe generator falls back to its static questions.
type TemplateClient struct{}

func NewTemplateClient() *TemplateClient {
	return &TemplateClient{}
}

func (c *TemplateClient) Name() string { return ProviderTemplate }

func (c *TemplateClient) Generate(ctx context.Context, prompt string) (string, error) {
	return "", ErrTemplateOnly
}
