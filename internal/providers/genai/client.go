// Package genai wraps the Gemini-style generation API the canvas submits
// prompts to. Image and audio generation are single request/response calls;
// video generation is a long-running operation the caller polls.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	VideoModel string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client is a thin facade over the remote API. Without an API key it serves
// deterministic synthetic assets so the rest of the pipeline (persistence,
// handles, layer updates) stays exercisable in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	videoModel string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Reference is encoded input media sent along with a prompt.
type Reference struct {
	MIMEType string
	Data     []byte
}

// ImageRequest carries everything needed to generate one image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	References  []Reference
}

// AudioRequest carries everything needed to generate one audio clip.
type AudioRequest struct {
	Prompt     string
	References []Reference
}

// VideoRequest starts a long-running video generation.
type VideoRequest struct {
	Prompt    string
	Reference *Reference
}

// InlineAsset is generated media returned to the caller.
type InlineAsset struct {
	Data     []byte
	MIMEType string
}

// Operation identifies an in-flight video generation on the remote side.
type Operation struct {
	Name string
}

// VideoStatus is one polling round's view of a video operation.
type VideoStatus struct {
	Done         bool
	FileURI      string
	MIMEType     string
	ErrorMessage string
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	AspectRatio        string   `json:"aspectRatio,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type predictLongRunningRequest struct {
	Instances []videoInstance `json:"instances"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI      string `json:"uri"`
					MimeType string `json:"mimeType,omitempty"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. A nil HTTP client gets a
// reusable one with a conservative timeout.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.0-generate-001"
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		videoModel: videoModel,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured generation model identifier.
func (c *Client) Model() string { return c.model }

// GenerateImage runs a single generateContent call and returns the first
// media part of the response.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (InlineAsset, error) {
	if err := ctx.Err(); err != nil {
		return InlineAsset{}, err
	}
	if c.apiKey == "" {
		return c.syntheticImage(req), nil
	}

	parts := []part{{Text: req.Prompt}}
	for _, ref := range req.References {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: ref.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			AspectRatio:        req.AspectRatio,
		},
	}

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return InlineAsset{}, err
	}
	asset, err := c.firstMediaPart(ctx, response)
	if err != nil {
		return InlineAsset{}, err
	}
	if asset.MIMEType == "" {
		asset.MIMEType = "image/png"
	}
	return asset, nil
}

// GenerateAudio runs a single generateContent call requesting audio output.
func (c *Client) GenerateAudio(ctx context.Context, req AudioRequest) (InlineAsset, error) {
	if err := ctx.Err(); err != nil {
		return InlineAsset{}, err
	}
	if c.apiKey == "" {
		return c.syntheticAudio(req), nil
	}

	parts := []part{{Text: req.Prompt}}
	for _, ref := range req.References {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: ref.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"AUDIO"}},
	}

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return InlineAsset{}, err
	}
	asset, err := c.firstMediaPart(ctx, response)
	if err != nil {
		return InlineAsset{}, err
	}
	if asset.MIMEType == "" {
		asset.MIMEType = "audio/wav"
	}
	return asset, nil
}

// SubmitVideo starts a long-running video generation and returns the
// operation handle to poll.
func (c *Client) SubmitVideo(ctx context.Context, req VideoRequest) (Operation, error) {
	if err := ctx.Err(); err != nil {
		return Operation{}, err
	}
	if c.apiKey == "" {
		return Operation{Name: syntheticOperationName(req.Prompt)}, nil
	}

	instance := videoInstance{Prompt: req.Prompt}
	if req.Reference != nil {
		instance.Image = &inlineData{
			MimeType: req.Reference.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Reference.Data),
		}
	}
	payload := predictLongRunningRequest{Instances: []videoInstance{instance}}

	var response operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return Operation{}, err
	}
	if response.Name == "" {
		return Operation{}, fmt.Errorf("genai: operation name missing from response")
	}
	return Operation{Name: response.Name}, nil
}

// PollVideo fetches the current state of a video operation.
func (c *Client) PollVideo(ctx context.Context, op Operation) (VideoStatus, error) {
	if err := ctx.Err(); err != nil {
		return VideoStatus{}, err
	}
	if c.apiKey == "" {
		return VideoStatus{Done: true, FileURI: op.Name, MIMEType: "video/mp4"}, nil
	}

	var response operationResponse
	if err := c.get(ctx, "/"+strings.TrimLeft(op.Name, "/"), &response); err != nil {
		return VideoStatus{}, err
	}

	status := VideoStatus{Done: response.Done}
	if response.Error != nil {
		status.ErrorMessage = response.Error.Message
		if status.ErrorMessage == "" {
			status.ErrorMessage = fmt.Sprintf("operation failed with code %d", response.Error.Code)
		}
		return status, nil
	}
	samples := response.Response.GenerateVideoResponse.GeneratedSamples
	if response.Done && len(samples) > 0 {
		status.FileURI = samples[0].Video.URI
		status.MIMEType = samples[0].Video.MimeType
	}
	return status, nil
}

// DownloadVideo fetches the finished video bytes.
func (c *Client) DownloadVideo(ctx context.Context, fileURI string) (InlineAsset, error) {
	if err := ctx.Err(); err != nil {
		return InlineAsset{}, err
	}
	if c.apiKey == "" {
		return InlineAsset{Data: syntheticMedia("video", fileURI), MIMEType: "video/mp4"}, nil
	}

	target := fileURI
	if !strings.HasPrefix(fileURI, "http://") && !strings.HasPrefix(fileURI, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(fileURI, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return InlineAsset{}, fmt.Errorf("genai: create download request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return InlineAsset{}, fmt.Errorf("genai: download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return InlineAsset{}, fmt.Errorf("genai: download status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return InlineAsset{}, fmt.Errorf("genai: read video: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return InlineAsset{Data: data, MIMEType: mime}, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: invoke api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("genai: status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("genai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("genai: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	return nil
}

func (c *Client) firstMediaPart(ctx context.Context, response generateContentResponse) (InlineAsset, error) {
	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return InlineAsset{}, fmt.Errorf("genai: decode inline data: %w", err)
				}
				return InlineAsset{Data: data, MIMEType: p.InlineData.MimeType}, nil
			}
			if p.FileData != nil && p.FileData.FileURI != "" {
				asset, err := c.DownloadVideo(ctx, p.FileData.FileURI)
				if err != nil {
					return InlineAsset{}, err
				}
				if p.FileData.MimeType != "" {
					asset.MIMEType = p.FileData.MimeType
				}
				return asset, nil
			}
		}
	}
	return InlineAsset{}, fmt.Errorf("genai: response carried no media part")
}

// Synthetic assets keep the pipeline verifiable end-to-end without an API
// key: colors and bytes are derived from the prompt so runs are
// deterministic.

func (c *Client) syntheticImage(req ImageRequest) InlineAsset {
	seed := deterministicSeed(req.Prompt, req.AspectRatio)
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill := colorFromSeed(seed)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	c.logger.Debug().Str("seed", seed[:8]).Msg("genai: synthetic image asset")
	return InlineAsset{Data: buf.Bytes(), MIMEType: "image/png"}
}

func (c *Client) syntheticAudio(req AudioRequest) InlineAsset {
	c.logger.Debug().Msg("genai: synthetic audio asset")
	return InlineAsset{Data: syntheticWAV(req.Prompt), MIMEType: "audio/wav"}
}

func syntheticOperationName(prompt string) string {
	return "operations/synthetic-" + deterministicSeed(prompt)[:16]
}

func syntheticMedia(kind, seedInput string) []byte {
	seed := deterministicSeed(kind, seedInput)
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = seed[i%len(seed)]
	}
	return payload
}

// syntheticWAV renders a minimal valid 8-bit mono WAV of flat samples.
func syntheticWAV(prompt string) []byte {
	const samples = 8000
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+samples))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(samples))
	level := deterministicSeed(prompt)[0]
	buf.Write(bytes.Repeat([]byte{level}, samples))
	return buf.Bytes()
}

func deterministicSeed(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func colorFromSeed(seed string) color.RGBA {
	return color.RGBA{R: seed[0], G: seed[1], B: seed[2], A: 0xff}
}
