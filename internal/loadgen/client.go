package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the podium HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
	board   string
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL, board string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		board:   board,
	}
}

// SubmitResult is the decoded reply to a command.
type SubmitResult struct {
	Code     int
	Status   string `json:"status"`
	NewScore int64  `json:"new_score"`
	NewRank  int    `json:"new_rank"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	if c.board != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("board", c.board)
	}
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

// Health checks that the service answers on /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts one command.
func (c *Client) Submit(ctx context.Context, cmd Command) (SubmitResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("marshal command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/commands", nil), bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var res SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return SubmitResult{Code: resp.StatusCode}, fmt.Errorf("decode command reply: %w", err)
	}
	res.Code = resp.StatusCode
	return res, nil
}

// Leaderboard fetches the top n rows.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]Entry, error) {
	q := url.Values{"limit": []string{strconv.Itoa(n)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/leaderboard", q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leaderboard returned status %d", resp.StatusCode)
	}
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entries, nil
}
