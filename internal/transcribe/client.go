// Package transcribe wraps the external speech-to-text capability.
// The engine itself is opaque: the client posts a media reference and
// gets plain text back, and every failure mode (network, decode,
// unsupported format) surfaces as a single transcription error.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Transcriber converts a stored recording into plain text
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Client is an HTTP client for the transcription service
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type transcribeRequest struct {
	MediaURL string `json:"media_url"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// New creates a transcription client. The timeout must not undercut the
// service's own processing window; long recordings take a while.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Transcribe implements Transcriber
func (c *Client) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	startTime := time.Now()

	body, err := json.Marshal(transcribeRequest{MediaURL: mediaURL})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	url := fmt.Sprintf("%s/v1/transcriptions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Transcription request failed")
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Transcription service returned non-OK status")
		return "", fmt.Errorf("transcription failed: status %d", resp.StatusCode)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	if parsed.Transcript == "" {
		return "", fmt.Errorf("transcription failed: empty transcript")
	}

	log.Debug().
		Dur("duration", time.Since(startTime)).
		Int("length", len(parsed.Transcript)).
		Msg("Transcription complete")

	return parsed.Transcript, nil
}
