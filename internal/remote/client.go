// Package remote is the client for an external arbitration service.
// When a deployment runs one, it is the authority for exclusivity and
// the shared store becomes a mirror; this client covers its task claim,
// file lock, state, and pause surface.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/arbiter"
	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// ErrRateLimited is returned on HTTP 429. It is transient; callers
// should back off and retry rather than treat it as a refusal.
var ErrRateLimited = errors.New("arbiter rate limited")

const defaultTimeout = 10 * time.Second

// Client talks to the external arbiter over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the arbiter at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// State is the arbiter's leader and policy snapshot.
type State struct {
	Leader         string   `json:"leader"`
	AuthorizedMCPs []string `json:"authorizedMcps"`
}

// Stats is the arbiter's aggregate view of the swarm.
type Stats struct {
	AgentCount int  `json:"agentCount"`
	TaskCount  int  `json:"taskCount"`
	Stopped    bool `json:"stopped"`
}

type claimResponse struct {
	OK        bool   `json:"ok"`
	ClaimedBy string `json:"claimedBy"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type stoppedResponse struct {
	Stopped bool `json:"stopped"`
}

// ClaimTask asks the arbiter for an atomic exclusive claim. A refused
// claim names the current holder, mirroring store.ClaimResult.
func (c *Client) ClaimTask(ctx context.Context, taskID, agent string) (*store.ClaimResult, error) {
	var resp claimResponse
	err := c.post(ctx, "/claim_task", map[string]string{"task_id": taskID, "agent": agent}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.OK {
		return &store.ClaimResult{OK: true, ClaimedBy: agent}, nil
	}
	return &store.ClaimResult{OK: false, ClaimedBy: resp.ClaimedBy}, nil
}

// ReleaseTask releases a claim held by agent.
func (c *Client) ReleaseTask(ctx context.Context, taskID, agent string) error {
	var resp okResponse
	if err := c.post(ctx, "/release_task", map[string]string{"task_id": taskID, "agent": agent}, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return store.ErrNotHolder
	}
	return nil
}

// Reserve takes an exclusive file lock through the arbiter. The remote
// surface has no shared mode or TTL; those are shared-store refinements.
func (c *Client) Reserve(ctx context.Context, path, agent string, exclusive bool, ttl time.Duration) (*arbiter.ReserveResult, error) {
	if !exclusive {
		return nil, fmt.Errorf("remote arbiter supports exclusive locks only")
	}
	var resp claimResponse
	if err := c.post(ctx, "/lock_file", map[string]string{"path": path, "agent": agent}, &resp); err != nil {
		return nil, err
	}
	if resp.OK {
		return &arbiter.ReserveResult{OK: true, Holder: agent}, nil
	}
	return &arbiter.ReserveResult{OK: false, Holder: resp.ClaimedBy}, nil
}

// Release drops a file lock held by agent.
func (c *Client) Release(ctx context.Context, path, agent string) error {
	var resp okResponse
	if err := c.post(ctx, "/unlock_file", map[string]string{"path": path, "agent": agent}, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return store.ErrNotHolder
	}
	return nil
}

// List is not served by the remote surface; the shared-store mirror
// remains the read path for lock listings.
func (c *Client) List(ctx context.Context) ([]models.FileLock, error) {
	return nil, fmt.Errorf("remote arbiter does not list locks")
}

// State fetches the current leader and policy snapshot.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.get(ctx, "/api/state", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Stats fetches aggregate swarm counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.get(ctx, "/api/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Stop raises the global pause flag. Agents poll Stats and idle while
// stopped is set.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	var resp stoppedResponse
	if err := c.post(ctx, "/stop", nil, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

// Resume clears the global pause flag.
func (c *Client) Resume(ctx context.Context) (bool, error) {
	var resp stoppedResponse
	if err := c.post(ctx, "/resume", nil, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("arbiter request %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("arbiter rate limited", "path", req.URL.Path)
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("arbiter %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode arbiter response: %w", err)
	}
	return nil
}
