package explain

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/miru/internal/imaging"
)

// OpenAIConfig holds settings for the OpenAI vision explainer.
type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	ThumbnailMaxEdge int
	JPEGQuality      int
}

// OpenAIExplainer generates explanations with a vision-capable chat model.
// Images are downscaled and recompressed before upload to bound token usage.
type OpenAIExplainer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	maxEdge     int
	jpegQuality int
}

// NewOpenAIExplainer creates an explainer. APIKey is required.
func NewOpenAIExplainer(cfg OpenAIConfig) (*OpenAIExplainer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ThumbnailMaxEdge <= 0 {
		cfg.ThumbnailMaxEdge = 512
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIExplainer{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxEdge:     cfg.ThumbnailMaxEdge,
		jpegQuality: cfg.JPEGQuality,
	}, nil
}

// Explain implements Explainer.
func (e *OpenAIExplainer) Explain(ctx context.Context, imagePath, query string) (string, error) {
	dataURL, err := e.encodeImage(imagePath)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt(query)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		MaxTokens:   openai.Int(int64(e.maxTokens)),
		Temperature: openai.Float(e.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("explanation request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("explanation response had no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("explanation response had no content")
	}
	return content, nil
}

// encodeImage loads, downscales, and recompresses the image as a base64 JPEG data URL.
func (e *OpenAIExplainer) encodeImage(path string) (string, error) {
	img, err := imaging.Decode(path)
	if err != nil {
		return "", err
	}
	img = imaging.Thumbnail(img, e.maxEdge)
	data, err := imaging.EncodeJPEG(img, e.jpegQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Close implements Explainer.
func (e *OpenAIExplainer) Close() error {
	return nil
}

var _ Explainer = (*OpenAIExplainer)(nil)
