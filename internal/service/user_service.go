package service

import (
	"context"
	"strings"

	"rentonmap/internal/identity"
	"rentonmap/internal/models"
	"rentonmap/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// SignIn links an external profile to a local user by email, creating the
// user on first sign-in and refreshing name and avatar afterwards.
func (s *UserService) SignIn(ctx context.Context, p identity.Profile) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, models.NewUnauthorizedError("Identity provider did not return an email")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &models.User{
			Name:               p.DisplayName(),
			Email:              email,
			Image:              p.Picture,
			VerificationStatus: models.VerificationUnverified,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			// Lost a race with a concurrent first sign-in.
			if existing, getErr := s.userRepo.GetByEmail(ctx, email); getErr == nil && existing != nil {
				return s.userRepo.GetByID(ctx, existing.ID)
			}
			return nil, err
		}
		return s.userRepo.GetByID(ctx, user.ID)
	}

	name := user.Name
	if n := strings.TrimSpace(p.Name); n != "" {
		name = n
	}
	image := user.Image
	if p.Picture != "" {
		image = p.Picture
	}
	if name != user.Name || image != user.Image {
		if err := s.userRepo.UpdateProfile(ctx, user.ID, name, image); err != nil {
			return nil, err
		}
	}
	return s.userRepo.GetByID(ctx, user.ID)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// RequestVerification moves the user to "pending". Verified users stay
// verified.
func (s *UserService) RequestVerification(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.VerificationStatus == models.VerificationVerified {
		return user, nil
	}
	if err := s.userRepo.UpdateVerificationStatus(ctx, userID, models.VerificationPending); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, userID)
}

// ToggleSaved flips the membership of listingID in the user's saved set.
func (s *UserService) ToggleSaved(ctx context.Context, userID, listingID uint) (bool, []uint, error) {
	if listingID == 0 {
		return false, nil, models.NewValidationError("Property ID required", "propertyId")
	}
	return s.userRepo.ToggleSaved(ctx, userID, listingID)
}

// ListSaved returns the user's saved listings with owners joined.
func (s *UserService) ListSaved(ctx context.Context, userID uint) ([]*models.Listing, error) {
	return s.userRepo.ListSaved(ctx, userID)
}
