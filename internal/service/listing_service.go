// Package service provides application business logic for listings, users
// and chat.
package service

import (
	"context"
	"sync"
	"time"

	"rentonmap/internal/cache"
	"rentonmap/internal/featureflags"
	"rentonmap/internal/geoindex"
	"rentonmap/internal/media"
	"rentonmap/internal/middleware"
	"rentonmap/internal/models"
	"rentonmap/internal/notifications"
	"rentonmap/internal/observability"
	"rentonmap/internal/repository"
	"rentonmap/internal/search"
)

const (
	DefaultSearchCacheTTL = 30 * time.Second
	DefaultSweepInterval  = 10 * time.Minute
	DefaultGeoSyncRetry   = time.Minute

	msgNotFoundOrUnauthorized = "Property not found or unauthorized"
)

// Promotion plans and their durations.
const (
	PlanOneWeek  = "1_week"
	PlanOneMonth = "1_month"
)

var planDurations = map[string]time.Duration{
	PlanOneWeek:  7 * 24 * time.Hour,
	PlanOneMonth: 30 * 24 * time.Hour,
}

// ListingServiceDeps wires a ListingService. Geo and Events are optional.
type ListingServiceDeps struct {
	Listings       repository.ListingRepository
	Geo            geoindex.Index
	Media          *media.Uploader
	Events         notifications.Publisher
	Flags          *featureflags.Manager
	SearchCacheTTL time.Duration
}

// ListingService provides listing search and owner operations.
type ListingService struct {
	listings repository.ListingRepository
	geo      geoindex.Index
	media    *media.Uploader
	events   notifications.Publisher
	flags    *featureflags.Manager
	cacheTTL time.Duration
	now      func() time.Time

	sweepOnce sync.Once
	geoOnce   sync.Once

	geoMu       sync.Mutex
	geoInSync   bool
	geoFailures uint64
}

// CreateListingInput is the input for creating a listing.
type CreateListingInput struct {
	OwnerID       uint
	Title         string
	Description   string
	Price         float64
	Type          models.ListingType
	Features      []string
	Images        []string
	Bedrooms      *int
	Bathrooms     *int
	Area          *int
	ContactNumber string
	Address       string
	City          string
	PostalCode    string
	Rooms         *models.RoomDetails
	Lat           float64
	Lng           float64
}

// UpdateListingInput is a partial update. Nil fields are left unchanged;
// the location changes only when both Lat and Lng are set.
type UpdateListingInput struct {
	ID            uint
	UserID        uint
	Title         *string
	Description   *string
	Price         *float64
	Type          *models.ListingType
	Features      []string
	Images        []string
	Bedrooms      *int
	Bathrooms     *int
	Area          *int
	ContactNumber *string
	Address       *string
	City          *string
	PostalCode    *string
	Rooms         *models.RoomDetails
	Lat           *float64
	Lng           *float64
}

// NewListingService returns a new ListingService.
func NewListingService(deps ListingServiceDeps) *ListingService {
	events := deps.Events
	if events == nil {
		events = notifications.Nop{}
	}
	flags := deps.Flags
	if flags == nil {
		flags = featureflags.NewManager("")
	}
	ttl := deps.SearchCacheTTL
	if ttl <= 0 {
		ttl = DefaultSearchCacheTTL
	}
	return &ListingService{
		listings: deps.Listings,
		geo:      deps.Geo,
		media:    deps.Media,
		events:   events,
		flags:    flags,
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// Search returns listings matching p with currently featured listings first.
func (s *ListingService) Search(ctx context.Context, p search.Params) ([]*models.Listing, error) {
	q, err := search.Build(p)
	if err != nil {
		return nil, err
	}

	mode := "bbox"
	if q.Fallback() {
		mode = "fallback"
	}

	useCache := s.flags.On(featureflags.SearchCache) && cache.GetClient() != nil
	var key string
	if useCache {
		key = cache.SearchKey(cache.ListingsVersion(ctx), q.CacheKey())
		var cached []*models.Listing
		if hit, _ := cache.GetJSON(ctx, key, &cached); hit {
			observability.SearchCacheResults.WithLabelValues("hit").Inc()
			observability.ListingSearches.WithLabelValues(mode, "cache").Inc()
			return search.FeaturedFirst(cached, s.now()), nil
		}
		observability.SearchCacheResults.WithLabelValues("miss").Inc()
	}

	listings, source, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	observability.ListingSearches.WithLabelValues(mode, source).Inc()

	if useCache {
		_ = cache.SetJSON(ctx, key, listings, s.cacheTTL)
	}
	return search.FeaturedFirst(listings, s.now()), nil
}

// geoSearchable reports whether the mirror can answer bounded searches. It
// stays false until a full reindex has completed with no mirror write
// failing in the meantime.
func (s *ListingService) geoSearchable() bool {
	return s.geo != nil && s.flags.On(featureflags.GeoIndexSearch) && s.geoSynced()
}

// fetch asks the geo index for candidate ids when it is in sync and falls
// back to the relational store otherwise. The unbounded fallback fetch
// always reads the primary store.
func (s *ListingService) fetch(ctx context.Context, q search.ListingQuery) ([]*models.Listing, string, error) {
	if !q.Fallback() && s.geoSearchable() {
		ids, err := s.geo.Search(ctx, q)
		if err == nil {
			rows, err := s.listings.ListByIDs(ctx, ids)
			if err != nil {
				return nil, "", err
			}
			out := make([]*models.Listing, 0, len(rows))
			for _, l := range rows {
				if q.Matches(l) {
					out = append(out, l)
				}
			}
			return out, "mongo", nil
		}
		middleware.Logger.WarnContext(ctx, "geo index search failed, using primary store", "error", err)
	}

	listings, err := s.listings.Search(ctx, q)
	return listings, "postgres", err
}

// SyncGeoIndex copies every stored listing into the geo index. Bounded
// searches use the index only after a sync in which no other mirror write
// failed.
func (s *ListingService) SyncGeoIndex(ctx context.Context) (int, error) {
	if s.geo == nil {
		return 0, nil
	}
	s.geoMu.Lock()
	failures := s.geoFailures
	s.geoMu.Unlock()

	n, err := geoindex.Reindex(ctx, s.geo, s.listings, geoindex.DefaultReindexBatch)

	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	s.geoInSync = err == nil && s.geoFailures == failures
	return n, err
}

func (s *ListingService) geoSynced() bool {
	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	return s.geoInSync
}

// StartGeoSync reindexes in the background and retries every interval while
// the index is out of sync. Calling it more than once has no effect.
func (s *ListingService) StartGeoSync(ctx context.Context, interval time.Duration) {
	if s.geo == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultGeoSyncRetry
	}
	s.geoOnce.Do(func() {
		go s.geoSyncLoop(ctx, interval)
	})
}

func (s *ListingService) geoSyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !s.geoSynced() {
			n, err := s.SyncGeoIndex(ctx)
			if err != nil {
				middleware.Logger.WarnContext(ctx, "geo index sync failed, searching the primary store", "error", err)
			} else {
				middleware.Logger.InfoContext(ctx, "geo index synced", "listings", n)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Get returns one listing with its owner. Hidden listings are only served
// to their owner; viewerID is 0 for anonymous callers.
func (s *ListingService) Get(ctx context.Context, id, viewerID uint) (*models.Listing, error) {
	var listing models.Listing
	err := cache.Aside(ctx, cache.ListingKey(id), &listing, cache.ListingTTL, func() error {
		l, err := s.listings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		listing = *l
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !listing.IsVisible && (viewerID == 0 || listing.OwnerID != viewerID) {
		return nil, models.NewNotFoundMessage("Property not found")
	}
	return &listing, nil
}

// Create uploads inline images and stores a new visible listing.
func (s *ListingService) Create(ctx context.Context, in CreateListingInput) (*models.Listing, error) {
	if in.OwnerID == 0 {
		return nil, models.NewUnauthorizedError("Unauthorized")
	}
	if !in.Type.Valid() {
		return nil, models.NewValidationError("type is invalid", "type")
	}
	if in.Price <= 0 {
		return nil, models.NewValidationError("price must be greater than 0", "price")
	}

	images, err := s.resolveImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}
	features := in.Features
	if features == nil {
		features = []string{}
	}

	listing := &models.Listing{
		Title:         in.Title,
		Description:   in.Description,
		Price:         in.Price,
		Type:          in.Type,
		Features:      features,
		Images:        images,
		Bedrooms:      in.Bedrooms,
		Bathrooms:     in.Bathrooms,
		Area:          in.Area,
		ContactNumber: in.ContactNumber,
		Address:       in.Address,
		City:          in.City,
		PostalCode:    in.PostalCode,
		Rooms:         in.Rooms,
		Location:      models.GeoPoint{Lat: in.Lat, Lng: in.Lng},
		IsVisible:     true,
		OwnerID:       in.OwnerID,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		s.dropImages(ctx, images, in.Images)
		return nil, err
	}

	s.afterWrite(ctx, listing, notifications.EventListingCreated, in.OwnerID)
	return s.reload(ctx, listing)
}

// Update applies a partial update to a listing owned by in.UserID.
func (s *ListingService) Update(ctx context.Context, in UpdateListingInput) (*models.Listing, error) {
	listing, err := s.owned(ctx, in.ID, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Type != nil && !in.Type.Valid() {
		return nil, models.NewValidationError("type is invalid", "type")
	}
	if in.Price != nil && *in.Price <= 0 {
		return nil, models.NewValidationError("price must be greater than 0", "price")
	}

	setString(&listing.Title, in.Title)
	setString(&listing.Description, in.Description)
	setString(&listing.ContactNumber, in.ContactNumber)
	setString(&listing.Address, in.Address)
	setString(&listing.City, in.City)
	setString(&listing.PostalCode, in.PostalCode)
	if in.Price != nil {
		listing.Price = *in.Price
	}
	if in.Type != nil {
		listing.Type = *in.Type
	}
	if in.Features != nil {
		listing.Features = in.Features
	}
	if in.Bedrooms != nil {
		listing.Bedrooms = in.Bedrooms
	}
	if in.Bathrooms != nil {
		listing.Bathrooms = in.Bathrooms
	}
	if in.Area != nil {
		listing.Area = in.Area
	}
	if in.Rooms != nil {
		listing.Rooms = in.Rooms
	}
	if in.Lat != nil && in.Lng != nil {
		listing.Location = models.GeoPoint{Lat: *in.Lat, Lng: *in.Lng}
	}
	if in.Images != nil {
		images, err := s.resolveImages(ctx, in.Images)
		if err != nil {
			return nil, err
		}
		listing.Images = images
	}

	if err := s.listings.Update(ctx, listing); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, listing, notifications.EventListingUpdated, in.UserID)
	return s.reload(ctx, listing)
}

// Delete removes a listing owned by userID and then, best effort, its
// hosted images.
func (s *ListingService) Delete(ctx context.Context, id, userID uint) error {
	listing, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.listings.Delete(ctx, id); err != nil {
		return err
	}

	if s.media != nil {
		if failed := s.media.DeleteImages(ctx, listing.Images); failed > 0 {
			middleware.Logger.WarnContext(ctx, "some listing images were not deleted", "listing_id", id, "failed", failed)
		}
	}
	if s.geo != nil {
		if err := s.geo.Remove(ctx, id); err != nil {
			observability.LogAsyncOperationError(ctx, "geoindex.remove", err, map[string]any{"listing_id": id})
		}
	}
	cache.InvalidateListing(ctx, id)
	s.publish(ctx, notifications.Event{Type: notifications.EventListingDeleted, ListingID: id, ActorID: userID})
	return nil
}

// Promote features a listing for the plan's duration, starting now.
func (s *ListingService) Promote(ctx context.Context, userID, listingID uint, plan string) (*models.Listing, error) {
	d, ok := planDurations[plan]
	if !ok {
		return nil, models.NewValidationError("plan must be one of [1_week 1_month]", "plan")
	}
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != userID {
		return nil, models.NewForbiddenError("You do not own this property")
	}

	expiry := s.now().Add(d)
	if err := s.listings.SetFeatured(ctx, listingID, expiry); err != nil {
		return nil, err
	}
	listing.IsFeatured = true
	listing.FeaturedExpiry = &expiry

	cache.InvalidateListing(ctx, listingID)
	s.publish(ctx, notifications.Event{Type: notifications.EventListingPromoted, ListingID: listingID, ActorID: userID})
	return listing, nil
}

// SetVisibility hides or shows a listing owned by userID.
func (s *ListingService) SetVisibility(ctx context.Context, userID, listingID uint, visible bool) (*models.Listing, error) {
	listing, err := s.owned(ctx, listingID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.listings.SetVisibility(ctx, listingID, visible); err != nil {
		return nil, err
	}
	listing.IsVisible = visible
	s.afterWrite(ctx, listing, notifications.EventListingUpdated, userID)
	return listing, nil
}

// ListOwn returns every listing of the user, hidden ones included.
func (s *ListingService) ListOwn(ctx context.Context, userID uint) ([]*models.Listing, error) {
	return s.listings.ListByOwner(ctx, userID)
}

// ExpireFeatured clears promotions whose window has passed. When several
// instances share Redis only one of them sweeps per interval.
func (s *ListingService) ExpireFeatured(ctx context.Context, interval time.Duration) (int64, error) {
	if !cache.TryLock(ctx, cache.FeaturedSweepLockID, interval/2) {
		return 0, nil
	}
	n, err := s.listings.ExpireFeatured(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.FeaturedExpired.Add(float64(n))
		cache.BumpListingsVersion(ctx)
	}
	return n, nil
}

// StartFeaturedSweeper runs ExpireFeatured every interval until ctx ends.
// Calling it more than once has no effect.
func (s *ListingService) StartFeaturedSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.sweepOnce.Do(func() {
		go s.sweepLoop(ctx, interval)
	})
}

func (s *ListingService) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireFeatured(ctx, interval)
			if err != nil {
				middleware.Logger.ErrorContext(ctx, "featured sweep failed", "error", err)
				continue
			}
			if n > 0 {
				middleware.Logger.InfoContext(ctx, "featured listings expired", "count", n)
			}
		}
	}
}

func (s *ListingService) owned(ctx context.Context, id, userID uint) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if models.StatusFor(err) == 404 {
			return nil, models.NewNotFoundMessage(msgNotFoundOrUnauthorized)
		}
		return nil, err
	}
	if listing.OwnerID != userID {
		return nil, models.NewNotFoundMessage(msgNotFoundOrUnauthorized)
	}
	return listing, nil
}

func (s *ListingService) resolveImages(ctx context.Context, images []string) ([]string, error) {
	if images == nil {
		return []string{}, nil
	}
	if s.media == nil {
		for _, img := range images {
			if media.IsDataURI(img) {
				return nil, models.NewValidationError("Image uploads are not configured", "images")
			}
		}
		return images, nil
	}
	return s.media.ResolveImages(ctx, images)
}

// dropImages removes images uploaded for a write that then failed.
func (s *ListingService) dropImages(ctx context.Context, resolved, submitted []string) {
	if s.media == nil {
		return
	}
	var fresh []string
	for i, url := range resolved {
		if i < len(submitted) && media.IsDataURI(submitted[i]) {
			fresh = append(fresh, url)
		}
	}
	s.media.DeleteImages(ctx, fresh)
}

func (s *ListingService) afterWrite(ctx context.Context, listing *models.Listing, eventType string, actorID uint) {
	if s.geo != nil {
		if err := s.geo.Upsert(ctx, listing); err != nil {
			s.geoMu.Lock()
			s.geoFailures++
			s.geoInSync = false
			s.geoMu.Unlock()
			observability.LogAsyncOperationError(ctx, "geoindex.upsert", err, map[string]any{"listing_id": listing.ID})
		}
	}
	cache.InvalidateListing(ctx, listing.ID)
	s.publish(ctx, notifications.Event{Type: eventType, ListingID: listing.ID, ActorID: actorID})
}

func (s *ListingService) reload(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	fresh, err := s.listings.GetByID(ctx, listing.ID)
	if err != nil {
		return listing, nil
	}
	return fresh, nil
}

func (s *ListingService) publish(ctx context.Context, e notifications.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		observability.LogAsyncOperationError(ctx, "events.publish", err, map[string]any{"type": e.Type})
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
