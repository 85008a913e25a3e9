// Package coach wraps the external feedback-generation capability.
package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"storycoach/internal/model"
)

// Result is the fixed schema the capability must return. Malformed
// output is treated identically to a capability error.
type Result struct {
	Narrative    string   `json:"narrative"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	NextSteps    []string `json:"next_steps"`
	Score        int      `json:"score"`
}

// Generator produces structured coaching feedback from a transcript
type Generator interface {
	Generate(ctx context.Context, transcript string, personality model.Personality) (*Result, error)
}

// Client is an HTTP client for the feedback-generation service
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type generateRequest struct {
	Transcript  string `json:"transcript"`
	Personality string `json:"personality"`
}

// New creates a feedback-generation client
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Generate implements Generator
func (c *Client) Generate(ctx context.Context, transcript string, personality model.Personality) (*Result, error) {
	startTime := time.Now()

	body, err := json.Marshal(generateRequest{
		Transcript:  transcript,
		Personality: string(personality),
	})
	if err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}

	url := fmt.Sprintf("%s/v1/feedback", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Feedback generation request failed")
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Feedback service returned non-OK status")
		return nil, fmt.Errorf("feedback generation failed: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}

	if err := Validate(&result); err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}

	log.Debug().
		Dur("duration", time.Since(startTime)).
		Int("score", result.Score).
		Msg("Feedback generation complete")

	return &result, nil
}

// Validate enforces the capability's output schema
func Validate(r *Result) error {
	if r.Narrative == "" {
		return fmt.Errorf("malformed feedback: empty narrative")
	}
	if r.Score < model.MinScore || r.Score > model.MaxScore {
		return fmt.Errorf("malformed feedback: score %d out of range", r.Score)
	}
	if len(r.Strengths) == 0 {
		return fmt.Errorf("malformed feedback: no strengths")
	}
	if len(r.Improvements) == 0 {
		return fmt.Errorf("malformed feedback: no improvements")
	}
	if len(r.NextSteps) == 0 {
		return fmt.Errorf("malformed feedback: no next steps")
	}
	return nil
}
