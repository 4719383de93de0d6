package audio

import (
	"context"

	"canvasd/internal/providers/genai"
)

type GenerateRequest struct {
	Prompt     string
	References []genai.Reference
}

type Asset struct {
	Data     []byte
	MIMEType string
}

// Generator produces one audio clip per request in a single round trip.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (Asset, error) {
	asset, err := g.client.GenerateAudio(ctx, genai.AudioRequest{
		Prompt:     req.Prompt,
		References: req.References,
	})
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: asset.Data, MIMEType: asset.MIMEType}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
