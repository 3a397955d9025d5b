package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perquyk/snutz/internal/version"
	"github.com/perquyk/snutz/pkg/models"
)

// Client talks to the SNUTZ coordination API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an API client for the given server base URL
// (e.g. "http://coordinator:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SubmitResultRequest is the payload for submitting a test outcome.
type SubmitResultRequest struct {
	DeviceID    string          `json:"device_id"`
	TestType    models.TestType `json:"test_type"`
	Target      string          `json:"target,omitempty"`
	ResultData  json.RawMessage `json:"result_data"`
	TriggeredBy string          `json:"triggered_by"`
}

// Register upserts this agent's device record.
func (c *Client) Register(ctx context.Context, deviceID, name string) (*models.Device, error) {
	var d models.Device
	err := c.do(ctx, http.MethodPost, "/devices/register",
		map[string]string{"device_id": deviceID, "name": name}, &d)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &d, nil
}

// Heartbeat reports liveness.
func (c *Client) Heartbeat(ctx context.Context, deviceID string) error {
	path := fmt.Sprintf("/devices/%s/heartbeat", url.PathEscape(deviceID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// PendingCommands fetches this device's queued commands, oldest first.
func (c *Client) PendingCommands(ctx context.Context, deviceID string) ([]models.Command, error) {
	var commands []models.Command
	path := fmt.Sprintf("/commands/pending/%s", url.PathEscape(deviceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &commands); err != nil {
		return nil, fmt.Errorf("pending commands: %w", err)
	}
	return commands, nil
}

// CompleteCommand records a command's terminal transition.
func (c *Client) CompleteCommand(ctx context.Context, commandID string, status models.CommandStatus, resultID *int64) error {
	path := fmt.Sprintf("/commands/%s/complete", url.PathEscape(commandID))
	body := map[string]any{"status": status}
	if resultID != nil {
		body["result_id"] = *resultID
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("complete command: %w", err)
	}
	return nil
}

// DueSchedules fetches this device's schedules whose interval has elapsed.
func (c *Client) DueSchedules(ctx context.Context, deviceID string) ([]models.Schedule, error) {
	var schedules []models.Schedule
	path := fmt.Sprintf("/schedules/due/%s", url.PathEscape(deviceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &schedules); err != nil {
		return nil, fmt.Errorf("due schedules: %w", err)
	}
	return schedules, nil
}

// MarkScheduleRan records a schedule dispatch.
func (c *Client) MarkScheduleRan(ctx context.Context, scheduleID string) error {
	path := fmt.Sprintf("/schedules/%s/ran", url.PathEscape(scheduleID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mark schedule ran: %w", err)
	}
	return nil
}

// SubmitResult appends a test outcome and returns the stored record.
func (c *Client) SubmitResult(ctx context.Context, req SubmitResultRequest) (*models.TestResult, error) {
	var result models.TestResult
	if err := c.do(ctx, http.MethodPost, "/tests/results", req, &result); err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}
	return &result, nil
}

// do performs one JSON round trip against the API.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError extracts the problem detail from an error response.
func apiError(resp *http.Response) error {
	var problem struct {
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &problem) == nil && problem.Detail != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, problem.Detail)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
