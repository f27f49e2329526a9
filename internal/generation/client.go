package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chandrahoro/reading-service/internal/model"
)

// Client talks to the reading-generation HTTP service.
type Client struct {
	http *resty.Client
}

// NewClient builds a generation client against the service base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Client{http: c}
}

type generateRequest struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`
	Type   string `json:"type"`
}

type generateResponse struct {
	Reading *model.Reading `json:"reading"`
	Error   string         `json:"error,omitempty"`
}

// Generate requests a fresh reading. Non-2xx responses and malformed
// payloads both surface as model.ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, userID, date string) (*model.Reading, error) {
	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&generateRequest{UserID: userID, Date: date, Type: model.ReadingTypeDaily}).
		SetResult(&out).
		Post("/api/readings/generate")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrGenerationFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: generation service status %d", model.ErrGenerationFailed, resp.StatusCode())
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", model.ErrGenerationFailed, out.Error)
	}
	r := out.Reading
	if r == nil || r.ReadingDate == "" {
		return nil, fmt.Errorf("%w: malformed generation payload", model.ErrGenerationFailed)
	}
	r.UserID = userID
	if r.ReadingType == "" {
		r.ReadingType = model.ReadingTypeDaily
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	return r, nil
}

// HealthPing implements health.HealthPinger against the service's own
// health endpoint.
func (c *Client) HealthPing(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("generation service status %d", resp.StatusCode())
	}
	return nil
}
