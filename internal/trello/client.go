package trello

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// NewClient creates a new Trello client.
func NewClient(key, token string) *Client {
	return &Client{
		Key:     key,
		Token:   token,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Key:        c.Key,
		Token:      c.Token,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Key:        c.Key,
		Token:      c.Token,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: c.HTTPClient,
	}
}

// buildURL constructs a full API URL carrying the credentials.
func (c *Client) buildURL(path string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("key", c.Key)
	values.Set("token", c.Token)
	return c.BaseURL + path + "?" + values.Encode()
}

// get performs a GET with retry on 429 and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	urlStr := c.buildURL(path, params)

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

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
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}

// BoardsByOrganization lists the boards of an organization.
func (c *Client) BoardsByOrganization(ctx context.Context, org string) ([]Board, error) {
	var boards []Board
	if err := c.get(ctx, "/organizations/"+url.PathEscape(org)+"/boards", nil, &boards); err != nil {
		return nil, fmt.Errorf("failed to list boards of %s: %w", org, err)
	}
	return boards, nil
}

// ListsByBoard lists the open lists of a board.
func (c *Client) ListsByBoard(ctx context.Context, boardID string) ([]List, error) {
	var lists []List
	if err := c.get(ctx, "/boards/"+boardID+"/lists", nil, &lists); err != nil {
		return nil, fmt.Errorf("failed to list lists of board %s: %w", boardID, err)
	}
	return lists, nil
}

// CardsByList lists the open cards of a list.
func (c *Client) CardsByList(ctx context.Context, listID string) ([]Card, error) {
	var cards []Card
	if err := c.get(ctx, "/lists/"+listID+"/cards", nil, &cards); err != nil {
		return nil, fmt.Errorf("failed to list cards of list %s: %w", listID, err)
	}
	return cards, nil
}

// Board fetches a board by ID.
func (c *Client) Board(ctx context.Context, id string) (*Board, error) {
	var b Board
	if err := c.get(ctx, "/boards/"+id, nil, &b); err != nil {
		return nil, fmt.Errorf("failed to get board %s: %w", id, err)
	}
	return &b, nil
}

// List fetches a list by ID.
func (c *Client) List(ctx context.Context, id string) (*List, error) {
	var l List
	if err := c.get(ctx, "/lists/"+id, nil, &l); err != nil {
		return nil, fmt.Errorf("failed to get list %s: %w", id, err)
	}
	return &l, nil
}

// Card fetches a card by ID.
func (c *Client) Card(ctx context.Context, id string) (*Card, error) {
	var card Card
	if err := c.get(ctx, "/cards/"+id, nil, &card); err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return &card, nil
}

// ActionsByCard returns up to MaxActions actions of every type for a card.
func (c *Client) ActionsByCard(ctx context.Context, cardID string) ([]Action, error) {
	params := map[string]string{
		"filter": "all",
		"limit":  strconv.Itoa(MaxActions),
	}
	var actions []Action
	if err := c.get(ctx, "/cards/"+cardID+"/actions", params, &actions); err != nil {
		return nil, fmt.Errorf("failed to get actions of card %s: %w", cardID, err)
	}
	return actions, nil
}

// ChecklistsByCard returns the checklists of a card.
func (c *Client) ChecklistsByCard(ctx context.Context, cardID string) ([]Checklist, error) {
	var checklists []Checklist
	if err := c.get(ctx, "/cards/"+cardID+"/checklists", nil, &checklists); err != nil {
		return nil, fmt.Errorf("failed to get checklists of card %s: %w", cardID, err)
	}
	return checklists, nil
}

// AttachmentsByCard returns the attachments of a card.
func (c *Client) AttachmentsByCard(ctx context.Context, cardID string) ([]Attachment, error) {
	var attachments []Attachment
	if err := c.get(ctx, "/cards/"+cardID+"/attachments", nil, &attachments); err != nil {
		return nil, fmt.Errorf("failed to get attachments of card %s: %w", cardID, err)
	}
	return attachments, nil
}

// CoverByCard returns the cover attachment of a card, or nil if it has none.
func (c *Client) CoverByCard(ctx context.Context, card *Card) (*Attachment, error) {
	if card.IDAttachmentCover == "" {
		return nil, nil
	}
	var a Attachment
	if err := c.get(ctx, "/cards/"+card.ID+"/attachments/"+card.IDAttachmentCover, nil, &a); err != nil {
		return nil, fmt.Errorf("failed to get cover of card %s: %w", card.ID, err)
	}
	return &a, nil
}

// Member fetches a member by username or ID.
func (c *Client) Member(ctx context.Context, idOrUsername string) (*Member, error) {
	var m Member
	if err := c.get(ctx, "/members/"+url.PathEscape(idOrUsername), nil, &m); err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", idOrUsername, err)
	}
	return &m, nil
}
