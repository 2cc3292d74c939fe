package intake

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/models"
	log "github.com/sirupsen/logrus"
)

// Engine holds the intake core's dependencies and opens wizard sessions.
type Engine struct {
	store  db.RecordStore
	logger *log.Logger
}

// NewEngine creates an intake engine backed by the given record store.
func NewEngine(store db.RecordStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{store: store, logger: logger}
}

// Search matches a free-text query (reg no, VIN fragment or phone) against
// stored vehicles and returns ranked candidates. Queries shorter than two
// characters are rejected; an empty result set is a valid outcome that routes
// the wizard to the create-new branch.
func (e *Engine) Search(ctx context.Context, query string) ([]models.MatchCandidate, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 2 {
		return nil, ErrInvalidQuery
	}
	normalized := NormalizeIdentifier(trimmed)

	candidates, err := e.store.FindVehiclesMatching(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	rankCandidates(normalized, candidates)

	e.logger.WithFields(log.Fields{
		"query":   normalized,
		"matches": len(candidates),
	}).Debug("vehicle search")
	return candidates, nil
}

// CheckDuplicate asks the store whether a vehicle identifier already exists.
// Exact match only; fuzzy matching here would block legitimate registrations.
// A store failure is reported, never coerced to "no duplicate".
func (e *Engine) CheckDuplicate(ctx context.Context, kind models.IdentifierKind, value string) (bool, error) {
	normalized := NormalizeIdentifier(value)
	if normalized == "" {
		return false, fmt.Errorf("%w: empty identifier", ErrValidationFailed)
	}
	exists, err := e.store.VehicleIdentifierExists(ctx, kind, normalized)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	return exists, nil
}

// rankCandidates orders exact identifier matches before partial and phone
// matches, breaking ties by most recent intake first.
func rankCandidates(normalizedQuery string, candidates []models.MatchCandidate) {
	queryDigits := digitsOnly(normalizedQuery)
	rank := func(c *models.MatchCandidate) int {
		if c.RegNo == normalizedQuery || c.VIN == normalizedQuery {
			return 0
		}
		if queryDigits != "" && digitsOnly(c.CustomerPhone) == queryDigits {
			return 0
		}
		return 1
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(&candidates[i]), rank(&candidates[j])
		if ri != rj {
			return ri < rj
		}
		return candidates[i].LastIntakeAt.After(candidates[j].LastIntakeAt)
	})
}
