// Package shortcut provides client and data types for the Shortcut REST API.
//
// Shortcut is the current name of Clubhouse; the v3 API is unchanged. This
// package covers the subset of the API the migration and housekeeping
// pipelines need: stories, epics, milestones, labels, members, workflows
// and linked files.
package shortcut

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the Shortcut REST API endpoint.
	DefaultAPIEndpoint = "https://api.app.shortcut.com/api/v3"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 5

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// DefaultRequestsPerMinute is Shortcut's documented per-token limit.
	DefaultRequestsPerMinute = 200

	// DefaultBurst is the burst size of the client-side limiter.
	DefaultBurst = 10

	// MaxBulkSize is the maximum number of stories per bulk request.
	MaxBulkSize = 100
)

// Client provides methods to interact with the Shortcut REST API.
type Client struct {
	APIToken   string
	Endpoint   string // REST API endpoint URL (defaults to DefaultAPIEndpoint)
	HTTPClient *http.Client
	Limiter    *rate.Limiter // Shared by every goroutine using this client
}

// Project is a Shortcut project. Stories are created inside a project.
type Project struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TeamID     int64  `json:"team_id"`
	WorkflowID int64  `json:"workflow_id"`
	Archived   bool   `json:"archived"`
}

// Workflow represents a story workflow in Shortcut.
type Workflow struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TeamID      *int64          `json:"team_id,omitempty"`
	States      []WorkflowState `json:"states"`
}

// WorkflowState represents a state within a workflow.
type WorkflowState struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"` // "unstarted", "started", "done"
	Position    int    `json:"position"`
}

// EpicWorkflow is the organization-wide epic workflow.
type EpicWorkflow struct {
	ID         int64       `json:"id"`
	EpicStates []EpicState `json:"epic_states"`
}

// EpicState is a state of the epic workflow.
type EpicState struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "unstarted", "started", "done"
}

// Profile holds the personal details of a member.
type Profile struct {
	MentionName  string  `json:"mention_name"`
	Name         string  `json:"name"`
	EmailAddress *string `json:"email_address"`
	Deactivated  bool    `json:"deactivated"`
}

// Member represents a user/member in Shortcut.
type Member struct {
	ID      uuid.UUID `json:"id"`
	Profile Profile   `json:"profile"`
}

// Email returns the member's email address, or "" if hidden.
func (m Member) Email() string {
	if m.Profile.EmailAddress == nil {
		return ""
	}
	return *m.Profile.EmailAddress
}

// Label represents a label in Shortcut.
type Label struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Archived    bool   `json:"archived"`
}

// EpicStats holds the story counters Shortcut computes for an epic.
type EpicStats struct {
	NumStoriesDone      int `json:"num_stories_done"`
	NumStoriesStarted   int `json:"num_stories_started"`
	NumStoriesUnstarted int `json:"num_stories_unstarted"`
}

// Epic is a full epic as returned by create and update.
type Epic = EpicSlim

// EpicSlim is an epic as returned by the list endpoint.
type EpicSlim struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Archived            bool       `json:"archived"`
	Completed           bool       `json:"completed"`
	CompletedAt         *time.Time `json:"completed_at"`
	CompletedAtOverride *time.Time `json:"completed_at_override"`
	EpicStateID         int64      `json:"epic_state_id"`
	MilestoneID         *int64     `json:"milestone_id"`
	State               string     `json:"state"`
	Stats               EpicStats  `json:"stats"`
}

// Milestone is a Shortcut milestone.
type Milestone struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	State               string     `json:"state"`
	Position            int64      `json:"position"`
	CompletedAtOverride *time.Time `json:"completed_at_override"`
}

// StorySlim is a slimmed down version of Story returned by search.
type StorySlim struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	AppURL          string     `json:"app_url"`
	StoryType       string     `json:"story_type"`
	WorkflowStateID int64      `json:"workflow_state_id"`
	ExternalID      string     `json:"external_id"`
	EpicID          *int64     `json:"epic_id"`
	CompletedAt     *time.Time `json:"completed_at"`
	Archived        bool       `json:"archived"`
}

// Story is a story returned by create.
type Story struct {
	StorySlim
	Description string  `json:"description"`
	Labels      []Label `json:"labels"`
}

// LinkedFile is a file attached to stories by URL.
type LinkedFile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreateLabelParams names a label on a new story. Labels are created on
// the fly when a story references an unknown name.
type CreateLabelParams struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// CreateExternalTicketParams links a story back to the ticket it came from.
type CreateExternalTicketParams struct {
	ExternalID  string `json:"external_id"`
	ExternalURL string `json:"external_url"`
}

// CreateCommentParams is a comment created together with its story.
type CreateCommentParams struct {
	AuthorID  *uuid.UUID `json:"author_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Text      string     `json:"text"`
}

// CreateTaskParams is a checklist task created together with its story.
type CreateTaskParams struct {
	Description string `json:"description"`
	Complete    bool   `json:"complete"`
}

// CreateStoryParams represents parameters for creating a story.
type CreateStoryParams struct {
	Name                string                       `json:"name"`
	Description         string                       `json:"description,omitempty"`
	ProjectID           int64                        `json:"project_id,omitempty"`
	StoryType           string                       `json:"story_type,omitempty"`
	CreatedAt           *time.Time                   `json:"created_at,omitempty"`
	UpdatedAt           *time.Time                   `json:"updated_at,omitempty"`
	CompletedAtOverride *time.Time                   `json:"completed_at_override,omitempty"`
	WorkflowStateID     *int64                       `json:"workflow_state_id,omitempty"`
	RequestedByID       *uuid.UUID                   `json:"requested_by_id,omitempty"`
	OwnerIDs            []uuid.UUID                  `json:"owner_ids,omitempty"`
	Labels              []CreateLabelParams          `json:"labels,omitempty"`
	EpicID              *int64                       `json:"epic_id,omitempty"`
	ExternalID          string                       `json:"external_id,omitempty"`
	ExternalTickets     []CreateExternalTicketParams `json:"external_tickets,omitempty"`
	Comments            []CreateCommentParams        `json:"comments,omitempty"`
	Tasks               []CreateTaskParams           `json:"tasks,omitempty"`
	LinkedFileIDs       []int64                      `json:"linked_file_ids,omitempty"`
}

// UpdateStoryParams represents parameters for updating a story.
type UpdateStoryParams struct {
	Name            *string `json:"name,omitempty"`
	WorkflowStateID *int64  `json:"workflow_state_id,omitempty"`
	Archived        *bool   `json:"archived,omitempty"`
}

// UpdateStoriesParams updates many stories at once.
type UpdateStoriesParams struct {
	StoryIDs []int64 `json:"story_ids"`
	Archived *bool   `json:"archived,omitempty"`
}

// SearchStoriesParams filters stories. Zero values are omitted.
type SearchStoriesParams struct {
	ExternalID     string     `json:"external_id,omitempty"`
	Archived       *bool      `json:"archived,omitempty"`
	CompletedAtEnd *time.Time `json:"completed_at_end,omitempty"`
	ProjectIDs     []int64    `json:"project_ids,omitempty"`
}

// CreateEpicParams represents parameters for creating an epic.
type CreateEpicParams struct {
	Name string `json:"name"`
}

// UpdateEpicParams represents parameters for updating an epic.
type UpdateEpicParams struct {
	Archived    *bool  `json:"archived,omitempty"`
	EpicStateID *int64 `json:"epic_state_id,omitempty"`
	MilestoneID *int64 `json:"milestone_id,omitempty"`
}

// CreateMilestoneParams represents parameters for creating a milestone.
type CreateMilestoneParams struct {
	Name                string     `json:"name"`
	State               string     `json:"state,omitempty"`
	CompletedAtOverride *time.Time `json:"completed_at_override,omitempty"`
}

// UpdateMilestoneParams moves a milestone relative to another one.
type UpdateMilestoneParams struct {
	BeforeID *int64 `json:"before_id,omitempty"`
	AfterID  *int64 `json:"after_id,omitempty"`
}

// CreateLinkedFileParams represents parameters for creating a linked file.
type CreateLinkedFileParams struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Type        string     `json:"type"` // "url" for plain links
	Size        int64      `json:"size,omitempty"`
	Description string     `json:"description,omitempty"`
	UploaderID  *uuid.UUID `json:"uploader_id,omitempty"`
}
