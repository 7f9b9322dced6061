// Package history reads watched-segment history from a watchtrail server.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sendrec/watchtrail/internal/segment"
)

type Config struct {
	BaseURL string
	Token   string
}

type Client struct {
	config Config
	http   *http.Client
}

func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// History is a video's recorded segments as served by the history endpoint.
type History struct {
	VideoID         string
	DurationSeconds float64
	Segments        []segment.Segment
}

type historyResponse struct {
	VideoID         string           `json:"videoId"`
	DurationSeconds float64          `json:"durationSeconds"`
	Segments        []segment.Record `json:"segments"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Fetch returns the unmerged segment rows recorded for a video.
func (c *Client) Fetch(ctx context.Context, videoID string) (*History, error) {
	endpoint := fmt.Sprintf("%s/api/videos/%s/segments?merge=none", c.config.BaseURL, url.PathEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body errorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return nil, fmt.Errorf("history endpoint returned status %d: %s", resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("history endpoint returned status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	segments := segment.FromRecords(body.Segments)
	if err := segment.Validate(segments, true); err != nil {
		return nil, fmt.Errorf("history for video %s: %w", videoID, err)
	}

	return &History{
		VideoID:         body.VideoID,
		DurationSeconds: body.DurationSeconds,
		Segments:        segments,
	}, nil
}
