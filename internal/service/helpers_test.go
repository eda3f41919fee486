package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rentonmap/internal/cache"
	"rentonmap/internal/geoindex"
	"rentonmap/internal/media"
	"rentonmap/internal/models"
	"rentonmap/internal/notifications"
	"rentonmap/internal/repository"
	"rentonmap/internal/search"
	"rentonmap/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memoryGeo answers searches by evaluating the query over its own copies.
type memoryGeo struct {
	mu            sync.Mutex
	docs          map[uint]*models.Listing
	extra         []uint
	failing       bool
	rejectUpserts bool
	searches      int
}

func newMemoryGeo() *memoryGeo { return &memoryGeo{docs: map[uint]*models.Listing{}} }

func (g *memoryGeo) Upsert(_ context.Context, l *models.Listing) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rejectUpserts {
		return errors.New("mongo write timeout")
	}
	cp := *l
	g.docs[l.ID] = &cp
	return nil
}

func (g *memoryGeo) Remove(_ context.Context, id uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.docs, id)
	return nil
}

func (g *memoryGeo) Search(_ context.Context, q search.ListingQuery) ([]uint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches++
	if g.failing {
		return nil, errors.New("mongo unavailable")
	}
	ids := append([]uint{}, g.extra...)
	for id, l := range g.docs {
		if q.Matches(l) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (g *memoryGeo) set(fn func(g *memoryGeo)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *memoryGeo) searchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searches
}

var _ geoindex.Index = (*memoryGeo)(nil)

type listingEnv struct {
	db       *gorm.DB
	svc      *ListingService
	events   *recordingPublisher
	mediaDir string
}

func newListingEnv(t *testing.T, geo geoindex.Index) listingEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	dir := t.TempDir()
	events := &recordingPublisher{}
	svc := NewListingService(ListingServiceDeps{
		Listings: repository.NewListingRepository(db),
		Geo:      geo,
		Media:    media.NewUploader(media.NewLocalStore(dir, "/media"), media.Options{}),
		Events:   events,
	})
	return listingEnv{db: db, svc: svc, events: events, mediaDir: dir}
}

// useMiniredis installs a miniredis-backed cache client for the test.
func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func requireStatus(t *testing.T, want int, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, models.StatusFor(err), err.Error())
}
