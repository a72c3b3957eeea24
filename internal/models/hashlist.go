package models

import (
	"time"

	"github.com/google/uuid"
)

// Hashlist is a collection of target hashes. Read-only to the scheduling core
// except for crack submission, which sets Hash.PlainText.
type Hashlist struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	HashTypeID    int       `json:"hash_type_id"`
	TotalHashes   int       `json:"total_hashes"`
	CrackedHashes int       `json:"cracked_hashes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsFullyCracked reports whether every hash in the list has a known plaintext.
func (h *Hashlist) IsFullyCracked() bool {
	return h.TotalHashes > 0 && h.CrackedHashes >= h.TotalHashes
}

// Hash is a single target hash. PlainText is nil until cracked.
type Hash struct {
	ID          uuid.UUID `json:"id"`
	HashValue   string    `json:"hash_value"`
	PlainText   *string   `json:"plain_text,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// HashlistHash is the explicit join entity between hashlists and hashes.
type HashlistHash struct {
	HashlistID int64     `json:"hashlist_id"`
	HashID     uuid.UUID `json:"hash_id"`
}

// CrackSubmission is one (hash, plaintext) pair reported by an agent.
type CrackSubmission struct {
	HashValue string    `json:"hash_value"`
	PlainText string    `json:"plain_text"`
	CrackedAt time.Time `json:"cracked_at"`
}
