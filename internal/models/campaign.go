package models

import (
	"time"
)

// Campaign state constants
const (
	CampaignStateDraft     = "draft"
	CampaignStateActive    = "active"
	CampaignStateCompleted = "completed"
	CampaignStateArchived  = "archived"
)

// Campaign is the unit of work targeting one hashlist. It owns an ordered
// list of attacks and carries the priority used for task assignment ordering.
type Campaign struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	ProjectID   int        `json:"project_id"`
	HashlistID  int64      `json:"hashlist_id"`
	Priority    int        `json:"priority"`
	State       string     `json:"state"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"` // Set on archive; archived campaigns are excluded from default lookups
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsArchived reports whether the campaign has been soft-deleted.
func (c *Campaign) IsArchived() bool {
	return c.ArchivedAt != nil || c.State == CampaignStateArchived
}

// CampaignPatch carries an optional value per updatable campaign attribute.
// A nil field means "leave unchanged".
type CampaignPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CampaignPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Priority == nil
}

// CampaignProgress is the read-side rollup over a campaign's attacks.
type CampaignProgress struct {
	CampaignID      int     `json:"campaign_id"`
	ProgressPercent float64 `json:"progress_percent"`
	TotalTasks      int     `json:"total_tasks"`
	ActiveAgents    int     `json:"active_agents"`
}
