package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/utils"
	"github.com/crackops/taskforge/pkg/debug"
)

// ResourceResolver answers size questions about stored attack resources.
// The file-store side of the system implements it; tests use fakes.
type ResourceResolver interface {
	// WordCount returns the number of words in a wordlist.
	WordCount(ctx context.Context, wordlistID uuid.UUID) (int64, error)
	// RuleCount returns the number of rules in a rule list.
	RuleCount(ctx context.Context, ruleListID uuid.UUID) (int64, error)
	// MaskCount returns the number of mask lines in a mask list.
	MaskCount(ctx context.Context, maskListID uuid.UUID) (int64, error)
}

// KeyspaceEstimationService computes estimated keyspace and a 1-5 complexity
// score for an attack configuration. Estimation runs synchronously before the
// attack row is written.
type KeyspaceEstimationService struct {
	resolver ResourceResolver
}

// NewKeyspaceEstimationService creates a new estimation service.
func NewKeyspaceEstimationService(resolver ResourceResolver) *KeyspaceEstimationService {
	return &KeyspaceEstimationService{resolver: resolver}
}

// Estimate fills in EstimatedKeyspace and ComplexityScore on the attack.
// A validation failure leaves the attack untouched.
func (s *KeyspaceEstimationService) Estimate(ctx context.Context, attack *models.Attack) error {
	keyspace, err := s.keyspace(ctx, attack)
	if err != nil {
		return err
	}

	score, err := s.complexity(attack, keyspace)
	if err != nil {
		return err
	}

	attack.EstimatedKeyspace = keyspace
	attack.ComplexityScore = score

	debug.Log("Estimated attack keyspace", map[string]interface{}{
		"attack_mode":        attack.AttackMode,
		"estimated_keyspace": keyspace,
		"complexity_score":   score,
	})
	return nil
}

func (s *KeyspaceEstimationService) keyspace(ctx context.Context, attack *models.Attack) (int64, error) {
	switch attack.AttackMode {
	case models.AttackModeDictionary:
		return s.dictionaryKeyspace(ctx, attack)
	case models.AttackModeMask:
		return s.maskKeyspace(attack)
	case models.AttackModeHybridDictionary, models.AttackModeHybridMask:
		return s.hybridKeyspace(ctx, attack)
	default:
		return 0, &ValidationError{Field: "attack_mode", Message: fmt.Sprintf("unknown attack mode %q", attack.AttackMode)}
	}
}

// dictionaryKeyspace is words * rules. A missing rule list multiplies by 1;
// an empty wordlist yields keyspace 0 without error.
func (s *KeyspaceEstimationService) dictionaryKeyspace(ctx context.Context, attack *models.Attack) (int64, error) {
	if attack.WordlistID == nil {
		return 0, &ValidationError{Field: "wordlist_id", Message: "dictionary attack requires a wordlist"}
	}

	words, err := s.resolver.WordCount(ctx, *attack.WordlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve wordlist %s: %w", *attack.WordlistID, err)
	}

	var rules int64 = 1
	if attack.RuleListID != nil {
		rules, err = s.resolver.RuleCount(ctx, *attack.RuleListID)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve rule list %s: %w", *attack.RuleListID, err)
		}
		if rules == 0 {
			rules = 1
		}
	}

	return words * rules, nil
}

// maskKeyspace multiplies position cardinalities, or sums prefix keyspaces in
// increment mode.
func (s *KeyspaceEstimationService) maskKeyspace(attack *models.Attack) (int64, error) {
	if attack.Mask == nil || *attack.Mask == "" {
		return 0, nil
	}

	charsets := attack.CustomCharsets()
	if attack.IncrementMode {
		keyspace, err := utils.IncrementKeyspace(*attack.Mask, charsets, attack.IncrementMinimum, attack.IncrementMaximum)
		if err != nil {
			return 0, &ValidationError{Field: "mask", Message: err.Error()}
		}
		return keyspace, nil
	}

	keyspace, err := utils.MaskKeyspace(*attack.Mask, charsets)
	if err != nil {
		return 0, &ValidationError{Field: "mask", Message: err.Error()}
	}
	return keyspace, nil
}

// hybridKeyspace is words * mask keyspace. Both sides are required.
func (s *KeyspaceEstimationService) hybridKeyspace(ctx context.Context, attack *models.Attack) (int64, error) {
	if attack.WordlistID == nil {
		return 0, &ValidationError{Field: "wordlist_id", Message: "hybrid attack requires a wordlist"}
	}
	if attack.Mask == nil || *attack.Mask == "" {
		return 0, &ValidationError{Field: "mask", Message: "hybrid attack requires a mask"}
	}

	words, err := s.resolver.WordCount(ctx, *attack.WordlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve wordlist %s: %w", *attack.WordlistID, err)
	}

	maskKeyspace, err := utils.MaskKeyspace(*attack.Mask, attack.CustomCharsets())
	if err != nil {
		return 0, &ValidationError{Field: "mask", Message: err.Error()}
	}

	return words * maskKeyspace, nil
}

// complexity maps keyspace to a 1-5 bucket, with a one-point bonus for masks
// drawing on three or more charset classes. The score is advisory only.
func (s *KeyspaceEstimationService) complexity(attack *models.Attack, keyspace int64) (int, error) {
	score := complexityBucket(keyspace)

	if attack.Mask != nil && *attack.Mask != "" {
		diversity, err := utils.CharsetDiversity(*attack.Mask, attack.CustomCharsets())
		if err != nil {
			return 0, &ValidationError{Field: "mask", Message: err.Error()}
		}
		if diversity >= 3 && score < 5 {
			score++
		}
	}
	return score, nil
}

func complexityBucket(keyspace int64) int {
	switch {
	case keyspace < 1_000_000:
		return 1
	case keyspace < 100_000_000:
		return 2
	case keyspace < 10_000_000_000:
		return 3
	case keyspace < 1_000_000_000_000:
		return 4
	default:
		return 5
	}
}
