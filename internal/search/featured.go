package search

import (
	"time"

	"rentonmap/internal/models"
)

// FeaturedFirst moves listings promoted at now ahead of the rest. Relative
// order inside each group is kept; the input slice is not modified.
func FeaturedFirst(listings []*models.Listing, now time.Time) []*models.Listing {
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.FeaturedAt(now) {
			out = append(out, l)
		}
	}
	for _, l := range listings {
		if !l.FeaturedAt(now) {
			out = append(out, l)
		}
	}
	return out
}
