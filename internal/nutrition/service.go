package nutrition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/domain"
	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// Lookup statuses reported to callers.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
)

// Lookuper fetches nutrients for a canonical product name.
type Lookuper interface {
	Lookup(ctx context.Context, canonicalName string) (domain.Nutrients, bool, error)
}

// Result is the outcome of a cache-first lookup.
type Result struct {
	Status        string                        `json:"status"`
	CanonicalName string                        `json:"canonical_name"`
	Cached        bool                          `json:"cached"`
	Fact          *domain.NutritionFact         `json:"nutrition_fact,omitempty"`
	FailedLookup  *domain.FailedNutritionLookup `json:"failed_lookup,omitempty"`
	Message       string                        `json:"message,omitempty"`
}

// Service answers nutrition queries from the household cache, falling back
// to the provider and remembering both hits and misses.
type Service struct {
	store  storage.NutritionStore
	lookup Lookuper
	log    zerolog.Logger
}

func NewService(store storage.NutritionStore, lookup Lookuper, log zerolog.Logger) *Service {
	return &Service{store: store, lookup: lookup, log: log}
}

func (s *Service) Nutrition(ctx context.Context, canonicalName, householdID, userEmail string) (*Result, error) {
	name := strings.TrimSpace(canonicalName)
	if name == "" {
		return nil, fmt.Errorf("%w: canonical_name is required", domain.ErrValidation)
	}
	if householdID == "" {
		return nil, fmt.Errorf("%w: household_id is required", domain.ErrValidation)
	}

	cached, err := s.cached(ctx, householdID, name)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return &Result{Status: StatusSuccess, CanonicalName: name, Cached: true, Fact: cached}, nil
	}

	nutrients, found, err := s.lookup.Lookup(ctx, name)
	if err != nil {
		s.log.Error().Err(err).Str("canonical_name", name).Msg("Nutrition lookup failed")
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}

	if !found {
		failed, err := s.store.RecordFailedLookup(ctx, &domain.FailedNutritionLookup{
			CanonicalName: name,
			Source:        domain.NutritionSource,
			HouseholdID:   householdID,
			UserEmail:     userEmail,
		})
		if err != nil {
			return nil, err
		}
		return &Result{
			Status:        StatusNotFound,
			CanonicalName: name,
			FailedLookup:  failed,
			Message:       fmt.Sprintf("No nutrition data found for '%s'", name),
		}, nil
	}

	fact := &domain.NutritionFact{
		CanonicalName: name,
		Source:        domain.NutritionSource,
		Nutrients:     nutrients,
		HouseholdID:   householdID,
		UserEmail:     userEmail,
	}
	if err := s.store.CreateNutritionFact(ctx, fact); err != nil {
		// Another request cached the same name first; serve that one.
		if errors.Is(err, domain.ErrConflict) {
			if existing, cerr := s.cached(ctx, householdID, name); cerr == nil && existing != nil {
				return &Result{Status: StatusSuccess, CanonicalName: name, Cached: true, Fact: existing}, nil
			}
		}
		return nil, err
	}

	s.log.Info().Str("canonical_name", name).Str("household_id", householdID).Msg("Nutrition fact cached")
	return &Result{Status: StatusSuccess, CanonicalName: name, Fact: fact}, nil
}

func (s *Service) cached(ctx context.Context, householdID, name string) (*domain.NutritionFact, error) {
	fact, err := s.store.FindNutritionFact(ctx, householdID, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return fact, err
}
