package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/httpc"
)

// DefaultWhisperURL is the OpenAI transcription endpoint.
const DefaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// ErrNoAPIKey is returned when no OpenAI key is configured.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// Transcriber turns a WAV clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Whisper transcribes with OpenAI's whisper-1 model.
type Whisper struct {
	APIKey string
	URL    string
	Model  string
	Client *http.Client
}

// NewWhisper creates a client with a 15s timeout.
func NewWhisper(apiKey string) *Whisper {
	return &Whisper{
		APIKey: apiKey,
		URL:    DefaultWhisperURL,
		Model:  "whisper-1",
		Client: httpc.NewClient(15 * time.Second),
	}
}

// Transcribe uploads wav and returns the trimmed transcript.
func (w *Whisper) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if w.APIKey == "" {
		return "", ErrNoAPIKey
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("model", w.Model)
	writer.WriteField("response_format", "text")
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	part.Write(wav)
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.APIKey)

	resp, err := httpc.Do(w.Client, req)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return strings.TrimSpace(string(resp)), nil
}
