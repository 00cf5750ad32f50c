// Package vision asks a multimodal model about camera frames and turns the
// answers into robot actions.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
)

// DefaultGeminiURL is the Gemini API base.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// ErrNoAPIKey is returned when no key is configured.
var ErrNoAPIKey = errors.New("GOOGLE_API_KEY not set")

// Describer answers a prompt about an image.
type Describer interface {
	Describe(ctx context.Context, jpeg []byte, prompt string) (string, error)
}

// Gemini calls Gemini Flash to describe an image.
type Gemini struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// NewGemini creates a Gemini client with a 15s timeout.
func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		APIKey:  apiKey,
		Model:   DefaultGeminiModel,
		BaseURL: DefaultGeminiURL,
		Client:  httpc.NewClient(15 * time.Second),
	}
}

// Describe sends the frame and prompt and returns the model's text answer.
func (g *Gemini) Describe(ctx context.Context, jpeg []byte, prompt string) (string, error) {
	if g.APIKey == "" {
		return "", ErrNoAPIKey
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiBlob{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(jpeg)}},
			},
		}},
		GenerationConfig: geminiGeneration{Temperature: 0.2, MaxOutputTokens: 100},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.APIKey)
	var result geminiResponse
	if err := httpc.PostJSON(ctx, g.Client, url, payload, &result); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("gemini error: %s", result.Error.Message)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}
	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig geminiGeneration `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGeneration struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}
