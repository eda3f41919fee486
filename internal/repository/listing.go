package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"rentonmap/internal/models"
	"rentonmap/internal/observability"
	"rentonmap/internal/search"

	"gorm.io/gorm"
)

// ListingRepository defines persistence operations for listings.
type ListingRepository interface {
	Search(ctx context.Context, q search.ListingQuery) ([]*models.Listing, error)
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) error
	Update(ctx context.Context, listing *models.Listing) error
	Delete(ctx context.Context, id uint) error
	ListByOwner(ctx context.Context, ownerID uint) ([]*models.Listing, error)
	ListByIDs(ctx context.Context, ids []uint) ([]*models.Listing, error)
	SetFeatured(ctx context.Context, id uint, expiry time.Time) error
	SetVisibility(ctx context.Context, id uint, visible bool) error
	ExpireFeatured(ctx context.Context, now time.Time) (int64, error)
	EachBatch(ctx context.Context, size int, fn func([]*models.Listing) error) error
}

type listingRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewListingRepository returns a new ListingRepository implementation.
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db, log: observability.NewRepoLogger("listings")}
}

// Search runs q against the listings table with owners joined. Results are
// in primary key order; featured ordering is applied by the caller.
func (r *listingRepository) Search(ctx context.Context, q search.ListingQuery) ([]*models.Listing, error) {
	listings := []*models.Listing{}
	err := traced(ctx, "listings", "Search", func(ctx context.Context) error {
		return r.searchQuery(r.db.WithContext(ctx), q).Find(&listings).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "search")
		return nil, models.NewInternalError(err)
	}
	return listings, nil
}

func (r *listingRepository) searchQuery(db *gorm.DB, q search.ListingQuery) *gorm.DB {
	db = db.Model(&models.Listing{}).
		Preload("Owner").
		Where("is_visible = ?", true).
		Order("id ASC")

	if q.Fallback() {
		return db.Limit(q.Limit)
	}

	b := q.Bounds
	db = db.
		Where("lat BETWEEN ? AND ?", b.South, b.North).
		Where("lng BETWEEN ? AND ?", b.West, b.East).
		Where("price BETWEEN ? AND ?", q.MinPrice, q.MaxPrice)

	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}

	if tags := uniqueTags(q.Features); len(tags) > 0 {
		withAll := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.ListingFeature{}).
			Select("listing_id").
			Where("tag IN ?", tags).
			Group("listing_id").
			Having("COUNT(DISTINCT tag) = ?", len(tags))
		db = db.Where("id IN (?)", withAll)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	return db
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	err := traced(ctx, "listings", "GetByID", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Preload("Owner").First(&listing, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundMessage("Property not found")
		}
		r.log.LogError(ctx, err, "get")
		return nil, models.NewInternalError(err)
	}
	return &listing, nil
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	err := traced(ctx, "listings", "Create", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Owner", "FeatureTags").Create(listing).Error; err != nil {
				return err
			}
			return replaceFeatureRows(tx, listing.ID, listing.Features)
		})
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]any{"listing_id": listing.ID, "owner_id": listing.OwnerID})
	return nil
}

// Update writes every column of listing. The owner column is never changed.
func (r *listingRepository) Update(ctx context.Context, listing *models.Listing) error {
	err := traced(ctx, "listings", "Update", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(listing).
				Select("*").
				Omit("id", "owner_id", "created_at", "Owner", "FeatureTags").
				Updates(listing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return models.NewNotFoundMessage("Property not found")
			}
			return replaceFeatureRows(tx, listing.ID, listing.Features)
		})
	})
	if err != nil {
		return failed(ctx, r.log, "update", err)
	}
	r.log.LogUpdate(ctx, map[string]any{"listing_id": listing.ID})
	return nil
}

// Delete removes the listing with its feature rows and saved memberships.
// Conversations that reference it are kept.
func (r *listingRepository) Delete(ctx context.Context, id uint) error {
	err := traced(ctx, "listings", "Delete", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("listing_id = ?", id).Delete(&models.ListingFeature{}).Error; err != nil {
				return err
			}
			if err := tx.Where("listing_id = ?", id).Delete(&models.SavedListing{}).Error; err != nil {
				return err
			}
			res := tx.Delete(&models.Listing{}, id)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return models.NewNotFoundMessage("Property not found")
			}
			return nil
		})
	})
	if err != nil {
		return failed(ctx, r.log, "delete", err)
	}
	r.log.LogDelete(ctx, map[string]any{"listing_id": id})
	return nil
}

// ListByOwner returns every listing of the owner, hidden ones included,
// newest first.
func (r *listingRepository) ListByOwner(ctx context.Context, ownerID uint) ([]*models.Listing, error) {
	listings := []*models.Listing{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&listings).Error
	if err != nil {
		r.log.LogError(ctx, err, "list_by_owner")
		return nil, models.NewInternalError(err)
	}
	return listings, nil
}

// ListByIDs hydrates ids in the given order, skipping ids that no longer
// exist or are hidden.
func (r *listingRepository) ListByIDs(ctx context.Context, ids []uint) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return []*models.Listing{}, nil
	}
	var rows []*models.Listing
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("id IN ? AND is_visible = ?", ids, true).
		Find(&rows).Error
	if err != nil {
		r.log.LogError(ctx, err, "list_by_ids")
		return nil, models.NewInternalError(err)
	}

	byID := make(map[uint]*models.Listing, len(rows))
	for _, l := range rows {
		byID[l.ID] = l
	}
	out := make([]*models.Listing, 0, len(rows))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *listingRepository) SetFeatured(ctx context.Context, id uint, expiry time.Time) error {
	return r.updateColumns(ctx, id, "set_featured", map[string]any{
		"is_featured":     true,
		"featured_expiry": expiry,
	})
}

func (r *listingRepository) SetVisibility(ctx context.Context, id uint, visible bool) error {
	return r.updateColumns(ctx, id, "set_visibility", map[string]any{"is_visible": visible})
}

func (r *listingRepository) updateColumns(ctx context.Context, id uint, op string, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Listing{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, op)
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundMessage("Property not found")
	}
	return nil
}

// ExpireFeatured clears the featured flag on listings whose expiry is at or
// before now and returns how many were changed.
func (r *listingRepository) ExpireFeatured(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Listing{}).
		Where("is_featured = ? AND featured_expiry IS NOT NULL AND featured_expiry <= ?", true, now).
		Update("is_featured", false)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "expire_featured")
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

// EachBatch walks every listing, hidden ones included, in id order and hands
// fn one batch at a time. An error from fn stops the walk.
func (r *listingRepository) EachBatch(ctx context.Context, size int, fn func([]*models.Listing) error) error {
	var batch []*models.Listing
	var fnErr error
	err := traced(ctx, "listings", "EachBatch", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Order("id ASC").
			FindInBatches(&batch, size, func(*gorm.DB, int) error {
				fnErr = fn(batch)
				return fnErr
			}).Error
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		r.log.LogError(ctx, err, "each_batch")
		return models.NewInternalError(err)
	}
	return nil
}

func replaceFeatureRows(tx *gorm.DB, listingID uint, features []string) error {
	if err := tx.Where("listing_id = ?", listingID).Delete(&models.ListingFeature{}).Error; err != nil {
		return err
	}
	if len(features) == 0 {
		return nil
	}
	rows := make([]models.ListingFeature, 0, len(features))
	for i, tag := range features {
		rows = append(rows, models.ListingFeature{ListingID: listingID, Position: i, Tag: tag})
	}
	return tx.Create(&rows).Error
}

func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
