package models

import (
	"time"

	"github.com/google/uuid"
)

// Benchmark is an append-only performance sample for one agent, hash type and
// device. Samples are never mutated; capability and ranking both derive from
// the latest rows.
type Benchmark struct {
	ID         uuid.UUID `json:"id"`
	AgentID    int       `json:"agent_id"`
	HashTypeID int       `json:"hash_type_id"`
	Device     string    `json:"device"`
	Speed      int64     `json:"speed"` // hashes per second
	CreatedAt  time.Time `json:"createdAt"`
}
