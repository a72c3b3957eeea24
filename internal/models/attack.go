package models

import (
	"time"

	"github.com/google/uuid"
)

// Attack mode constants
const (
	AttackModeDictionary       = "dictionary"
	AttackModeMask             = "mask"
	AttackModeHybridDictionary = "hybrid_dictionary"
	AttackModeHybridMask       = "hybrid_mask"
)

// Attack state constants
const (
	AttackStatePending   = "pending"
	AttackStateRunning   = "running"
	AttackStateCompleted = "completed"
	AttackStateExhausted = "exhausted"
)

// Attack is one configured cracking strategy within a campaign. CampaignID is
// nil for standalone templates. Position is unique and contiguous within a
// campaign.
type Attack struct {
	ID         uuid.UUID `json:"id"`
	CampaignID *int      `json:"campaign_id,omitempty"`
	Name       string    `json:"name"`
	AttackMode string    `json:"attack_mode"`
	Position   int       `json:"position"`
	State      string    `json:"state"`
	HashTypeID int       `json:"hash_type_id"`

	// Mask configuration
	Mask             *string `json:"mask,omitempty"`
	IncrementMode    bool    `json:"increment_mode"`
	IncrementMinimum int     `json:"increment_minimum"`
	IncrementMaximum int     `json:"increment_maximum"`
	CustomCharset1   *string `json:"custom_charset_1,omitempty"`
	CustomCharset2   *string `json:"custom_charset_2,omitempty"`
	CustomCharset3   *string `json:"custom_charset_3,omitempty"`
	CustomCharset4   *string `json:"custom_charset_4,omitempty"`

	// Resource references
	WordlistID *uuid.UUID `json:"wordlist_id,omitempty"`
	RuleListID *uuid.UUID `json:"rule_list_id,omitempty"`
	MaskListID *uuid.UUID `json:"mask_list_id,omitempty"`

	EstimatedKeyspace int64 `json:"estimated_keyspace"`
	ComplexityScore   int   `json:"complexity_score"` // 1-5, advisory only

	TemplateID *uuid.UUID `json:"template_id,omitempty"` // Provenance when duplicated from another attack
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether the attack has finished running.
func (a *Attack) IsTerminal() bool {
	return a.State == AttackStateCompleted || a.State == AttackStateExhausted
}

// CustomCharsets returns the bound custom charsets keyed by token (?1-?4).
// Unbound charsets are omitted.
func (a *Attack) CustomCharsets() map[string]string {
	charsets := make(map[string]string, 4)
	for token, value := range map[string]*string{
		"?1": a.CustomCharset1,
		"?2": a.CustomCharset2,
		"?3": a.CustomCharset3,
		"?4": a.CustomCharset4,
	} {
		if value != nil && *value != "" {
			charsets[token] = *value
		}
	}
	return charsets
}

// AttackPatch carries an optional value per updatable attack attribute.
// Nil means "leave unchanged". ConfigChanged reports whether any field that
// invalidates in-flight tasks is present.
type AttackPatch struct {
	Name             *string    `json:"name,omitempty"`
	Mask             *string    `json:"mask,omitempty"`
	IncrementMode    *bool      `json:"increment_mode,omitempty"`
	IncrementMinimum *int       `json:"increment_minimum,omitempty"`
	IncrementMaximum *int       `json:"increment_maximum,omitempty"`
	CustomCharset1   *string    `json:"custom_charset_1,omitempty"`
	CustomCharset2   *string    `json:"custom_charset_2,omitempty"`
	CustomCharset3   *string    `json:"custom_charset_3,omitempty"`
	CustomCharset4   *string    `json:"custom_charset_4,omitempty"`
	WordlistID       *uuid.UUID `json:"wordlist_id,omitempty"`
	RuleListID       *uuid.UUID `json:"rule_list_id,omitempty"`
	MaskListID       *uuid.UUID `json:"mask_list_id,omitempty"`
}

// ConfigChanged reports whether the patch touches a configuration field that
// changes the attack's keyspace (and therefore invalidates existing tasks).
// Name alone is cosmetic.
func (p AttackPatch) ConfigChanged() bool {
	return p.Mask != nil ||
		p.IncrementMode != nil ||
		p.IncrementMinimum != nil ||
		p.IncrementMaximum != nil ||
		p.CustomCharset1 != nil ||
		p.CustomCharset2 != nil ||
		p.CustomCharset3 != nil ||
		p.CustomCharset4 != nil ||
		p.WordlistID != nil ||
		p.RuleListID != nil ||
		p.MaskListID != nil
}

// AttackTemplate is the portable configuration of an attack, used for
// export/import. Identity and timestamp fields are deliberately absent.
type AttackTemplate struct {
	Name             string     `json:"name"`
	AttackMode       string     `json:"attack_mode"`
	HashTypeID       int        `json:"hash_type_id"`
	Mask             *string    `json:"mask,omitempty"`
	IncrementMode    bool       `json:"increment_mode"`
	IncrementMinimum int        `json:"increment_minimum"`
	IncrementMaximum int        `json:"increment_maximum"`
	CustomCharset1   *string    `json:"custom_charset_1,omitempty"`
	CustomCharset2   *string    `json:"custom_charset_2,omitempty"`
	CustomCharset3   *string    `json:"custom_charset_3,omitempty"`
	CustomCharset4   *string    `json:"custom_charset_4,omitempty"`
	WordlistID       *uuid.UUID `json:"wordlist_id,omitempty"`
	RuleListID       *uuid.UUID `json:"rule_list_id,omitempty"`
	MaskListID       *uuid.UUID `json:"mask_list_id,omitempty"`
}

// AttackMoveDirection values for AttackService.MoveAttack.
const (
	AttackMoveUp     = "up"
	AttackMoveDown   = "down"
	AttackMoveTop    = "top"
	AttackMoveBottom = "bottom"
)
