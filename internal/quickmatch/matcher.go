package quickmatch

import (
	"context"

	"github.com/chachabrian/quickmatch-backend/internal/repository"
	"github.com/chachabrian/quickmatch-backend/pkg/utils"
)

type Location struct {
	Lat float64
	Lng float64
}

// Matcher selects the bounded set of businesses a request is fanned out to.
type Matcher struct {
	store         repository.DirectoryStore
	limit         int
	maxDistanceKm float64
}

// Find returns businesses with an active service in the category priced at or below
// maxPrice, cheapest first with ties broken by business ID. When near is set and a
// radius is configured, businesses with known coordinates outside it are dropped
// before truncation.
func (m *Matcher) Find(ctx context.Context, categoryID uint, maxPrice int64, near *Location) ([]uint, error) {
	filter := near != nil && m.maxDistanceKm > 0

	q := repository.CandidateQuery{CategoryID: categoryID, MaxPrice: maxPrice, Limit: m.limit}
	if filter {
		q.Limit = 0
	}
	candidates, err := m.store.FindCandidates(ctx, q)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		if filter && c.Latitude != nil && c.Longitude != nil &&
			!utils.IsWithinRadius(near.Lat, near.Lng, *c.Latitude, *c.Longitude, m.maxDistanceKm) {
			continue
		}
		ids = append(ids, c.BusinessID)
		if len(ids) == m.limit {
			break
		}
	}
	return ids, nil
}
