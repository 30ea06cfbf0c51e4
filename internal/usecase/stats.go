package usecase

import (
	"context"
	"errors"
	"strings"

	"kennel-assistant/internal/domain"
)

type LookupReader interface {
	LookupStats(ctx context.Context, outcome string) ([]domain.KeywordLookup, error)
}

// StatsService reports which keywords visitors hit and which questions fell
// through to the fallback.
type StatsService struct {
	reader LookupReader
}

type StatsOutput struct {
	Outcome string
	Lookups []domain.KeywordLookup
}

func NewStatsService(r LookupReader) (*StatsService, error) {
	if r == nil {
		return nil, errors.New("usecase: lookup reader must not be nil")
	}
	return &StatsService{reader: r}, nil
}

// Lookups lists counters for one outcome. An empty outcome means resolved.
func (s *StatsService) Lookups(ctx context.Context, outcome string) (StatsOutput, error) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome == "" {
		outcome = domain.OutcomeResolved
	}
	if outcome != domain.OutcomeResolved && outcome != domain.OutcomeFallback {
		return StatsOutput{}, newError(ErrorInvalidInput, "invalid_outcome", nil)
	}
	lookups, err := s.reader.LookupStats(ctx, outcome)
	if err != nil {
		return StatsOutput{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	return StatsOutput{Outcome: outcome, Lookups: lookups}, nil
}
