package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rentonmap/internal/models"
	"rentonmap/internal/service"
	"rentonmap/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock of repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uint, name, image string) error {
	return m.Called(ctx, id, name, image).Error(0)
}

func (m *MockUserRepository) UpdateVerificationStatus(ctx context.Context, id uint, status models.VerificationStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockUserRepository) ToggleSaved(ctx context.Context, userID, listingID uint) (bool, []uint, error) {
	args := m.Called(ctx, userID, listingID)
	ids, _ := args.Get(1).([]uint)
	return args.Bool(0), ids, args.Error(2)
}

func (m *MockUserRepository) SavedListingIDs(ctx context.Context, userID uint) ([]uint, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]uint)
	return ids, args.Error(1)
}

func (m *MockUserRepository) ListSaved(ctx context.Context, userID uint) ([]*models.Listing, error) {
	args := m.Called(ctx, userID)
	listings, _ := args.Get(0).([]*models.Listing)
	return listings, args.Error(1)
}

// mockedUserApp mounts the user handlers with the caller fixed to userID 1.
func mockedUserApp(repo *MockUserRepository) *fiber.App {
	s := &Server{userService: service.NewUserService(repo)}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return c.Next()
	})
	app.Get("/user/profile", s.GetProfile)
	app.Patch("/user/profile", s.RequestVerification)
	app.Post("/user/saved", s.ToggleSavedListing)
	app.Get("/user/saved", s.GetSavedListings)
	return app
}

func TestGetProfile(t *testing.T) {
	tests := []struct {
		name           string
		mockSetup      func(*MockUserRepository)
		expectedStatus int
	}{
		{
			name: "Success",
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByID", mock.Anything, uint(1)).Return(&models.User{ID: 1, Name: "Asha"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Not Found",
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByID", mock.Anything, uint(1)).Return(nil, models.NewNotFoundError("User", 1))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Database Error",
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByID", mock.Anything, uint(1)).Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.mockSetup(repo)
			app := mockedUserApp(repo)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/user/profile", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			repo.AssertExpectations(t)
		})
	}
}

func TestToggleSavedListing(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("ToggleSaved", mock.Anything, uint(1), uint(7)).Return(true, []uint{3, 7}, nil).Once()
	repo.On("ToggleSaved", mock.Anything, uint(1), uint(404)).Return(false, nil, models.NewNotFoundError("Property", 404)).Once()
	app := mockedUserApp(repo)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/user/saved", bytes.NewBufferString(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"propertyId":7}`)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		IsSaved         bool   `json:"isSaved"`
		SavedProperties []uint `json:"savedProperties"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.IsSaved)
	assert.Equal(t, []uint{3, 7}, out.SavedProperties)

	resp = post(`{"propertyId":404}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post(`{}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	repo.AssertExpectations(t)
}

func TestUserHandlers_ProfileAndSaved(t *testing.T) {
	env := newTestEnv(t, nil)
	user := testutil.CreateUser(t, env.db, "Asha")
	owner := testutil.CreateUser(t, env.db, "Owner")
	listing := testutil.CreateListing(t, env.db, owner.ID, 28.61, 77.21, 25000)
	tok := env.token(t, user.ID)

	resp, body := env.do(t, http.MethodPatch, "/api/user/profile", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, string(models.VerificationPending), body["verificationStatus"])

	resp, body = env.do(t, http.MethodPost, "/api/user/saved", tok, map[string]any{"propertyId": listing.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["isSaved"])

	resp, body = env.do(t, http.MethodGet, "/api/user/saved", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := listOf(t, body, "savedProperties")
	require.Len(t, saved, 1)
	assert.Equal(t, float64(listing.ID), saved[0].(map[string]any)["id"])

	resp, body = env.do(t, http.MethodPost, "/api/user/saved", tok, map[string]any{"propertyId": listing.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isSaved"])

	resp, body = env.do(t, http.MethodGet, "/api/user/profile", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Asha", body["name"])
}
