package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/crackops/taskforge/internal/db"
	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// bloomFalsePositiveRate trades a little wasted lookup work for filter size.
const bloomFalsePositiveRate = 0.001

// CrackSubmissionService accepts (hash, plaintext) pairs from agents. A
// per-hashlist bloom filter rejects values that cannot belong to the list
// before any database work; filter misses are authoritative, hits are
// verified against the database.
type CrackSubmissionService struct {
	database     *db.DB
	hashlistRepo *repository.HashlistRepository
	dispatcher   *Dispatcher

	mu      sync.Mutex
	filters map[int64]*bloom.BloomFilter
}

// NewCrackSubmissionService creates a new crack submission service.
func NewCrackSubmissionService(
	database *db.DB,
	hashlistRepo *repository.HashlistRepository,
	dispatcher *Dispatcher,
) *CrackSubmissionService {
	return &CrackSubmissionService{
		database:     database,
		hashlistRepo: hashlistRepo,
		dispatcher:   dispatcher,
		filters:      make(map[int64]*bloom.BloomFilter),
	}
}

// Submit records cracked hashes against a hashlist. Unknown hash values are
// rejected with a validation error; resubmitting an already-cracked hash is
// a no-op. Returns the number of newly cracked hashes.
func (s *CrackSubmissionService) Submit(ctx context.Context, hashlistID int64, submissions []models.CrackSubmission) (int, error) {
	if len(submissions) == 0 {
		return 0, nil
	}

	hashlist, err := s.hashlistRepo.GetByID(ctx, hashlistID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, &NotFoundError{Resource: "hashlist", ID: fmt.Sprintf("%d", hashlistID)}
		}
		return 0, err
	}

	filter, err := s.filter(ctx, hashlistID)
	if err != nil {
		return 0, err
	}

	for _, sub := range submissions {
		if sub.HashValue == "" {
			return 0, &ValidationError{Field: "hash_value", Message: "hash value must not be empty"}
		}
		if !filter.TestString(sub.HashValue) {
			return 0, &ValidationError{Field: "hash_value", Message: fmt.Sprintf("hash %q is not in hashlist %d", sub.HashValue, hashlistID)}
		}
	}

	newlyCracked := 0
	err = s.database.WithTx(ctx, func(tx *sql.Tx) error {
		for _, sub := range submissions {
			hash, err := s.hashlistRepo.GetHashByValue(ctx, hashlistID, sub.HashValue)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					// Bloom false positive.
					return &ValidationError{Field: "hash_value", Message: fmt.Sprintf("hash %q is not in hashlist %d", sub.HashValue, hashlistID)}
				}
				return err
			}

			affected, err := s.hashlistRepo.SetPlainTextTx(ctx, tx, hash.ID, sub.PlainText)
			if err != nil {
				return err
			}
			if affected > 0 {
				newlyCracked++
			}
		}

		if newlyCracked > 0 {
			if _, err := s.hashlistRepo.IncrementCrackedTx(ctx, tx, hashlistID, newlyCracked); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if newlyCracked > 0 {
		debug.Info("Recorded %d new crack(s) against hashlist %d", newlyCracked, hashlistID)
		s.dispatcher.Dispatch(ctx, TopicHashCracked, map[string]interface{}{
			"hashlist_id":   hashlistID,
			"newly_cracked": newlyCracked,
			"total_cracked": hashlist.CrackedHashes + newlyCracked,
		})
	}
	return newlyCracked, nil
}

// InvalidateFilter drops the cached filter for a hashlist, forcing a rebuild
// on the next submission. Called when hashes are added to a list.
func (s *CrackSubmissionService) InvalidateFilter(hashlistID int64) {
	s.mu.Lock()
	delete(s.filters, hashlistID)
	s.mu.Unlock()
}

// filter returns the hashlist's bloom filter, building it from the stored
// hash values on first use.
func (s *CrackSubmissionService) filter(ctx context.Context, hashlistID int64) (*bloom.BloomFilter, error) {
	s.mu.Lock()
	f, ok := s.filters[hashlistID]
	s.mu.Unlock()
	if ok {
		return f, nil
	}

	values, err := s.hashlistRepo.ListHashValues(ctx, hashlistID)
	if err != nil {
		return nil, err
	}

	n := uint(len(values))
	if n == 0 {
		n = 1
	}
	f = bloom.NewWithEstimates(n, bloomFalsePositiveRate)
	for _, v := range values {
		f.AddString(v)
	}

	s.mu.Lock()
	s.filters[hashlistID] = f
	s.mu.Unlock()

	debug.Debug("Built crack submission filter for hashlist %d (%d hashes)", hashlistID, len(values))
	return f, nil
}
