package shortcut

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when a named entity does not exist in Shortcut.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the Shortcut API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Message, e.StatusCode)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// NewClient creates a new Shortcut client.
func NewClient(apiToken string) *Client {
	return &Client{
		APIToken: apiToken,
		Endpoint: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Limiter: NewLimiter(DefaultRequestsPerMinute),
	}
}

// NewLimiter returns a limiter allowing perMinute requests per minute.
// A non-positive value disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), DefaultBurst)
}

// WithEndpoint returns a new client with a different endpoint.
func (c *Client) WithEndpoint(endpoint string) *Client {
	return &Client{
		APIToken:   c.APIToken,
		Endpoint:   strings.TrimRight(endpoint, "/"),
		HTTPClient: c.HTTPClient,
		Limiter:    c.Limiter,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		APIToken:   c.APIToken,
		Endpoint:   c.Endpoint,
		HTTPClient: httpClient,
		Limiter:    c.Limiter,
	}
}

// WithLimiter returns a new client sharing the given rate limiter.
func (c *Client) WithLimiter(limiter *rate.Limiter) *Client {
	return &Client{
		APIToken:   c.APIToken,
		Endpoint:   c.Endpoint,
		HTTPClient: c.HTTPClient,
		Limiter:    limiter,
	}
}

// doRequest performs an HTTP request with authentication, rate limiting and
// retry on 429. out may be nil when the response body is not needed.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.Endpoint+path, reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Shortcut-Token", c.APIToken)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = fmt.Errorf("rate limited (attempt %d/%d)", attempt+1, MaxRetries+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}

// errorMessage extracts the "message" field Shortcut puts in error bodies.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

// ListProjects returns all projects of the workspace.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.doRequest(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// FindProject returns the project with the given name.
func (c *Client) FindProject(ctx context.Context, name string) (*Project, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].Name == name {
			return &projects[i], nil
		}
	}
	return nil, fmt.Errorf("unknown project %q: %w", name, ErrNotFound)
}

// GetWorkflow fetches a story workflow by ID.
func (c *Client) GetWorkflow(ctx context.Context, id int64) (*Workflow, error) {
	var wf Workflow
	if err := c.doRequest(ctx, http.MethodGet, "/workflows/"+strconv.FormatInt(id, 10), nil, &wf); err != nil {
		return nil, fmt.Errorf("failed to get workflow %d: %w", id, err)
	}
	return &wf, nil
}

// GetEpicWorkflow fetches the epic workflow of the workspace.
func (c *Client) GetEpicWorkflow(ctx context.Context) (*EpicWorkflow, error) {
	var wf EpicWorkflow
	if err := c.doRequest(ctx, http.MethodGet, "/epic-workflow", nil, &wf); err != nil {
		return nil, fmt.Errorf("failed to get epic workflow: %w", err)
	}
	return &wf, nil
}

// ListMembers returns all members of the workspace.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := c.doRequest(ctx, http.MethodGet, "/members", nil, &members); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// SearchStories returns the stories matching params.
func (c *Client) SearchStories(ctx context.Context, params SearchStoriesParams) ([]StorySlim, error) {
	var stories []StorySlim
	if err := c.doRequest(ctx, http.MethodPost, "/stories/search", params, &stories); err != nil {
		return nil, fmt.Errorf("failed to search stories: %w", err)
	}
	return stories, nil
}

// FindStoryByExternalID returns the first story carrying externalID, or nil.
func (c *Client) FindStoryByExternalID(ctx context.Context, externalID string) (*StorySlim, error) {
	stories, err := c.SearchStories(ctx, SearchStoriesParams{ExternalID: externalID})
	if err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		return nil, nil
	}
	return &stories[0], nil
}

// CreateStory creates a new story.
func (c *Client) CreateStory(ctx context.Context, params *CreateStoryParams) (*Story, error) {
	var story Story
	if err := c.doRequest(ctx, http.MethodPost, "/stories", params, &story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	return &story, nil
}

// UpdateStory updates an existing story.
func (c *Client) UpdateStory(ctx context.Context, id int64, params *UpdateStoryParams) (*Story, error) {
	var story Story
	if err := c.doRequest(ctx, http.MethodPut, "/stories/"+strconv.FormatInt(id, 10), params, &story); err != nil {
		return nil, fmt.Errorf("failed to update story %d: %w", id, err)
	}
	return &story, nil
}

// UpdateStories applies params to many stories, MaxBulkSize at a time.
func (c *Client) UpdateStories(ctx context.Context, params UpdateStoriesParams) error {
	for _, chunk := range chunkIDs(params.StoryIDs, MaxBulkSize) {
		p := params
		p.StoryIDs = chunk
		if err := c.doRequest(ctx, http.MethodPut, "/stories/bulk", p, nil); err != nil {
			return fmt.Errorf("failed to update %d stories: %w", len(chunk), err)
		}
	}
	return nil
}

// DeleteStories deletes many stories, MaxBulkSize at a time.
func (c *Client) DeleteStories(ctx context.Context, ids []int64) error {
	for _, chunk := range chunkIDs(ids, MaxBulkSize) {
		body := map[string]interface{}{"story_ids": chunk}
		if err := c.doRequest(ctx, http.MethodDelete, "/stories/bulk", body, nil); err != nil {
			return fmt.Errorf("failed to delete %d stories: %w", len(chunk), err)
		}
	}
	return nil
}

// ListEpics returns all epics of the workspace.
func (c *Client) ListEpics(ctx context.Context) ([]EpicSlim, error) {
	var epics []EpicSlim
	if err := c.doRequest(ctx, http.MethodGet, "/epics", nil, &epics); err != nil {
		return nil, fmt.Errorf("failed to list epics: %w", err)
	}
	return epics, nil
}

// CreateEpic creates a new epic.
func (c *Client) CreateEpic(ctx context.Context, params CreateEpicParams) (*Epic, error) {
	var epic Epic
	if err := c.doRequest(ctx, http.MethodPost, "/epics", params, &epic); err != nil {
		return nil, fmt.Errorf("failed to create epic %q: %w", params.Name, err)
	}
	return &epic, nil
}

// UpdateEpic updates an existing epic.
func (c *Client) UpdateEpic(ctx context.Context, id int64, params UpdateEpicParams) (*Epic, error) {
	var epic Epic
	if err := c.doRequest(ctx, http.MethodPut, "/epics/"+strconv.FormatInt(id, 10), params, &epic); err != nil {
		return nil, fmt.Errorf("failed to update epic %d: %w", id, err)
	}
	return &epic, nil
}

// DeleteEpic deletes an epic.
func (c *Client) DeleteEpic(ctx context.Context, id int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/epics/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("failed to delete epic %d: %w", id, err)
	}
	return nil
}

// ListMilestones returns all milestones in their current order.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	var milestones []Milestone
	if err := c.doRequest(ctx, http.MethodGet, "/milestones", nil, &milestones); err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	return milestones, nil
}

// CreateMilestone creates a new milestone.
func (c *Client) CreateMilestone(ctx context.Context, params CreateMilestoneParams) (*Milestone, error) {
	var m Milestone
	if err := c.doRequest(ctx, http.MethodPost, "/milestones", params, &m); err != nil {
		return nil, fmt.Errorf("failed to create milestone %q: %w", params.Name, err)
	}
	return &m, nil
}

// UpdateMilestone updates (moves) a milestone.
func (c *Client) UpdateMilestone(ctx context.Context, id int64, params UpdateMilestoneParams) (*Milestone, error) {
	var m Milestone
	if err := c.doRequest(ctx, http.MethodPut, "/milestones/"+strconv.FormatInt(id, 10), params, &m); err != nil {
		return nil, fmt.Errorf("failed to update milestone %d: %w", id, err)
	}
	return &m, nil
}

// DeleteMilestone deletes a milestone.
func (c *Client) DeleteMilestone(ctx context.Context, id int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/milestones/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("failed to delete milestone %d: %w", id, err)
	}
	return nil
}

// ListLabels returns all labels of the workspace.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	if err := c.doRequest(ctx, http.MethodGet, "/labels", nil, &labels); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// DeleteLabel deletes a label.
func (c *Client) DeleteLabel(ctx context.Context, id int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/labels/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("failed to delete label %d: %w", id, err)
	}
	return nil
}

// CreateLinkedFile registers a file by URL so stories can reference it.
func (c *Client) CreateLinkedFile(ctx context.Context, params CreateLinkedFileParams) (*LinkedFile, error) {
	var f LinkedFile
	if err := c.doRequest(ctx, http.MethodPost, "/linked-files", params, &f); err != nil {
		return nil, fmt.Errorf("failed to create linked file %q: %w", params.Name, err)
	}
	return &f, nil
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
