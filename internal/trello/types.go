// Package trello provides client and data types for the Trello REST API.
package trello

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the Trello REST API base URL.
	DefaultAPIEndpoint = "https://api.trello.com/1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxActions is the largest page of card actions Trello returns.
	MaxActions = 1000
)

// Client provides methods to interact with the Trello REST API.
type Client struct {
	Key        string // Application key
	Token      string // User token
	BaseURL    string
	HTTPClient *http.Client
}

// Board is a Trello board.
type Board struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
	URL    string `json:"url"`
}

// List is a column of a board.
type List struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Closed  bool   `json:"closed"`
	IDBoard string `json:"idBoard"`
}

// Label is a colored card label. Color is a Trello color name.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Card is a Trello card.
type Card struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Desc              string   `json:"desc"`
	Closed            bool     `json:"closed"`
	URL               string   `json:"url"`
	IDBoard           string   `json:"idBoard"`
	IDList            string   `json:"idList"`
	IDMembers         []string `json:"idMembers"`
	IDAttachmentCover string   `json:"idAttachmentCover"`
	Labels            []Label  `json:"labels"`
}

// Member is a Trello user.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// ActionData holds the action payload fields the migration reads.
type ActionData struct {
	Text string `json:"text"`
}

// Action is an entry of a card's history. Comments are actions of type
// "commentCard".
type Action struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Date          time.Time  `json:"date"`
	MemberCreator *Member    `json:"memberCreator"`
	Data          ActionData `json:"data"`
}

// ActionCommentCard is the action type of card comments.
const ActionCommentCard = "commentCard"

// CheckItem is one entry of a checklist.
type CheckItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	State string  `json:"state"` // "complete" or "incomplete"
	Pos   float64 `json:"pos"`
}

// Checklist is a named list of check items on a card.
type Checklist struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	CheckItems []CheckItem `json:"checkItems"`
}

// Attachment is a file or link attached to a card.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Bytes    int64  `json:"bytes"`
	IDMember string `json:"idMember"`
	IsUpload bool   `json:"isUpload"`
}

// APIError is a non-2xx response from the Trello API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Message, e.StatusCode)
}

// IsRateLimited reports whether err means Trello is throttling us or its
// upstream is overloaded.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// IsNotFound reports whether err is a 404 from Trello.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
