package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/crackops/taskforge/internal/cache/capability"
	"github.com/crackops/taskforge/internal/models"
	"github.com/crackops/taskforge/internal/repository"
	"github.com/crackops/taskforge/pkg/debug"
)

// CapabilityService answers whether an agent can run a given hash type,
// backed by the agent's benchmark history. Capability sets are cached with a
// short TTL; a new benchmark invalidates the agent's entry immediately.
type CapabilityService struct {
	benchmarkRepo *repository.BenchmarkRepository
	agentRepo     *repository.AgentRepository
	cache         *capability.Cache
}

// NewCapabilityService creates a new capability service.
func NewCapabilityService(
	benchmarkRepo *repository.BenchmarkRepository,
	agentRepo *repository.AgentRepository,
	cache *capability.Cache,
) *CapabilityService {
	return &CapabilityService{
		benchmarkRepo: benchmarkRepo,
		agentRepo:     agentRepo,
		cache:         cache,
	}
}

// HashTypes returns the sorted hash types the agent is capable of. An agent
// with no positive benchmarks has an empty capability set.
func (s *CapabilityService) HashTypes(ctx context.Context, agentID int) ([]int, error) {
	set, err := s.capabilitySet(ctx, agentID)
	if err != nil {
		return nil, err
	}

	hashTypes := make([]int, 0, len(set))
	for hashType := range set {
		hashTypes = append(hashTypes, hashType)
	}
	sort.Ints(hashTypes)
	return hashTypes, nil
}

// IsCapable reports whether the agent has a positive benchmark for the hash
// type.
func (s *CapabilityService) IsCapable(ctx context.Context, agentID, hashTypeID int) (bool, error) {
	set, err := s.capabilitySet(ctx, agentID)
	if err != nil {
		return false, err
	}
	_, ok := set[hashTypeID]
	return ok, nil
}

// SubmitBenchmark records a benchmark result and invalidates the agent's
// cached capability set so the new capability is visible on the next claim.
func (s *CapabilityService) SubmitBenchmark(ctx context.Context, benchmark *models.Benchmark) error {
	if benchmark.Speed < 0 {
		return &ValidationError{Field: "speed", Message: "speed must not be negative"}
	}
	if benchmark.Device == "" {
		return &ValidationError{Field: "device", Message: "device must not be empty"}
	}

	if _, err := s.agentRepo.GetByID(ctx, benchmark.AgentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "agent", ID: fmt.Sprintf("%d", benchmark.AgentID)}
		}
		return err
	}

	if err := s.benchmarkRepo.Create(ctx, benchmark); err != nil {
		return err
	}

	s.cache.Invalidate(benchmark.AgentID)

	debug.Log("Benchmark recorded", map[string]interface{}{
		"agent_id":     benchmark.AgentID,
		"hash_type_id": benchmark.HashTypeID,
		"device":       benchmark.Device,
		"speed":        benchmark.Speed,
	})
	return nil
}

func (s *CapabilityService) capabilitySet(ctx context.Context, agentID int) (map[int]struct{}, error) {
	if set, ok := s.cache.Get(agentID); ok {
		return set, nil
	}

	hashTypes, err := s.benchmarkRepo.HashTypesForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	set := make(map[int]struct{}, len(hashTypes))
	for _, hashType := range hashTypes {
		set[hashType] = struct{}{}
	}
	s.cache.Set(agentID, set)
	return set, nil
}
