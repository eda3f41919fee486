package repository

import (
	"context"
	"errors"

	"rentonmap/internal/cache"
	"rentonmap/internal/models"
	"rentonmap/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users and their saved listings.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id uint, name, image string) error
	UpdateVerificationStatus(ctx context.Context, id uint, status models.VerificationStatus) error
	ToggleSaved(ctx context.Context, userID, listingID uint) (saved bool, ids []uint, err error)
	SavedListingIDs(ctx context.Context, userID uint) ([]uint, error)
	ListSaved(ctx context.Context, userID uint) ([]*models.Listing, error)
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

// GetByID returns the user with saved listing ids populated. Results are
// cached until the profile or saved set changes.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		return traced(ctx, "users", "GetByID", func(ctx context.Context) error {
			if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotFoundError("User", id)
				}
				return err
			}
			ids, err := savedIDs(r.db.WithContext(ctx), id)
			user.SavedListingIDs = ids
			return err
		})
	})
	if err != nil {
		return nil, appError(err)
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no user has the email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.VerificationStatus == "" {
		user.VerificationStatus = models.VerificationUnverified
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already exists", "email")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": user.ID})
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uint, name, image string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "image": image}).Error
	if err != nil {
		r.log.LogError(ctx, err, "update_profile")
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) UpdateVerificationStatus(ctx context.Context, id uint, status models.VerificationStatus) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{
			"verification_status": status,
			"is_verified":         status == models.VerificationVerified,
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "update_verification")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	r.log.LogUpdate(ctx, map[string]any{"user_id": id, "verification_status": status})
	return nil
}

// ToggleSaved removes the membership if present, otherwise adds it, and
// returns the resulting saved set in insertion order.
func (r *userRepository) ToggleSaved(ctx context.Context, userID, listingID uint) (bool, []uint, error) {
	var (
		saved bool
		ids   []uint
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND listing_id = ?", userID, listingID).Delete(&models.SavedListing{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Listing{}).Where("id = ?", listingID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return models.NewNotFoundError("Property", listingID)
			}
			row := models.SavedListing{UserID: userID, ListingID: listingID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
			saved = true
		}
		var err error
		ids, err = savedIDs(tx, userID)
		return err
	})
	if err != nil {
		return false, nil, failed(ctx, r.log, "toggle_saved", err)
	}
	cache.InvalidateUser(ctx, userID)
	return saved, ids, nil
}

func (r *userRepository) SavedListingIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := savedIDs(r.db.WithContext(ctx), userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// ListSaved returns the user's saved listings with owners joined, in the
// order they were saved.
func (r *userRepository) ListSaved(ctx context.Context, userID uint) ([]*models.Listing, error) {
	listings := []*models.Listing{}
	err := traced(ctx, "saved_listings", "ListSaved", func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Select("listings.*").
			Joins("JOIN saved_listings ON saved_listings.listing_id = listings.id").
			Where("saved_listings.user_id = ?", userID).
			Preload("Owner").
			Order("saved_listings.created_at ASC, listings.id ASC").
			Find(&listings).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "list_saved")
		return nil, models.NewInternalError(err)
	}
	return listings, nil
}

func savedIDs(db *gorm.DB, userID uint) ([]uint, error) {
	ids := []uint{}
	err := db.Model(&models.SavedListing{}).
		Where("user_id = ?", userID).
		Order("created_at ASC, listing_id ASC").
		Pluck("listing_id", &ids).Error
	return ids, err
}
