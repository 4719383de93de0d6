package video

import (
	"context"

	"canvasd/internal/providers/genai"
)

type GenerateRequest struct {
	Prompt    string
	Reference *genai.Reference
}

type Asset struct {
	Data     []byte
	MIMEType string
}

// Operation is the remote handle polled while a video renders.
type Operation struct {
	Name string
}

// PollStatus reports one polling round. A non-empty ErrorMessage means the
// remote operation itself failed; Done with a FileURI means the result is
// ready to download.
type PollStatus struct {
	Done         bool
	FileURI      string
	MIMEType     string
	ErrorMessage string
}

// Generator exposes the three stages of long-running video generation
// separately so the orchestration layer owns the polling cadence and its
// cancellation checkpoints.
type Generator interface {
	Submit(ctx context.Context, req GenerateRequest) (Operation, error)
	Poll(ctx context.Context, op Operation) (PollStatus, error)
	Download(ctx context.Context, fileURI string) (Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Submit(ctx context.Context, req GenerateRequest) (Operation, error) {
	op, err := g.client.SubmitVideo(ctx, genai.VideoRequest{
		Prompt:    req.Prompt,
		Reference: req.Reference,
	})
	if err != nil {
		return Operation{}, err
	}
	return Operation{Name: op.Name}, nil
}

func (g *GeminiGenerator) Poll(ctx context.Context, op Operation) (PollStatus, error) {
	status, err := g.client.PollVideo(ctx, genai.Operation{Name: op.Name})
	if err != nil {
		return PollStatus{}, err
	}
	return PollStatus{
		Done:         status.Done,
		FileURI:      status.FileURI,
		MIMEType:     status.MIMEType,
		ErrorMessage: status.ErrorMessage,
	}, nil
}

func (g *GeminiGenerator) Download(ctx context.Context, fileURI string) (Asset, error) {
	asset, err := g.client.DownloadVideo(ctx, fileURI)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: asset.Data, MIMEType: asset.MIMEType}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
