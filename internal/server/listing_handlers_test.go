package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rentonmap/internal/models"
	"rentonmap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delhiBox = "minLat=28.5&maxLat=28.7&minLng=77.1&maxLng=77.3"

func flatBody(price float64) map[string]any {
	return map[string]any{
		"title":       "2BHK near Connaught Place",
		"description": "Bright flat, close to the metro",
		"price":       price,
		"type":        "Flat",
		"lat":         28.61,
		"lng":         77.21,
		"features":    []string{"Fully Furnished", "Family"},
	}
}

func TestListingHandlers_SearchScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	tok := env.token(t, owner.ID)

	resp, body := env.do(t, http.MethodPost, "/api/listings", tok, flatBody(25000))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	created := objectOf(t, body, "property")
	id := created["id"].(float64)
	assert.Equal(t, map[string]any{"type": "Point", "coordinates": []any{77.21, 28.61}}, created["location"])

	resp, body = env.do(t, http.MethodGet, "/api/listings?"+delhiBox+"&minPrice=20000&maxPrice=30000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := listOf(t, body, "properties")
	require.Len(t, found, 1)
	first := found[0].(map[string]any)
	assert.Equal(t, id, first["id"])
	assert.Equal(t, "Owner", objectOf(t, first, "owner")["name"])

	resp, body = env.do(t, http.MethodGet, "/api/listings?"+delhiBox+"&minPrice=30000&maxPrice=40000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, listOf(t, body, "properties"))

	resp, body = env.do(t, http.MethodGet, "/api/listings?"+delhiBox+"&type=Flat&furnishing=Full&tenantPreference=Family", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, listOf(t, body, "properties"), 1)

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/listings/%d", int(id)), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2BHK near Connaught Place", objectOf(t, body, "property")["title"])
}

func TestListingHandlers_SearchValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	testutil.CreateListing(t, env.db, owner.ID, 28.61, 77.21, 25000)

	resp, body := env.do(t, http.MethodGet, "/api/listings?"+delhiBox+"&type=Castle", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	// Without a complete box every filter is ignored.
	resp, body = env.do(t, http.MethodGet, "/api/listings?minLat=28.5&minPrice=90000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, listOf(t, body, "properties"), 1)

	resp, body = env.do(t, http.MethodGet, "/api/listings?minPrice=cheap", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, listOf(t, body, "properties"), 1)

	resp, _ = env.do(t, http.MethodGet, "/api/listings?"+delhiBox+"&minPrice=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListingHandlers_CreateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	tok := env.token(t, owner.ID)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing title", func(b map[string]any) { delete(b, "title") }, "title is required"},
		{"zero price", func(b map[string]any) { b["price"] = 0 }, "price is required"},
		{"negative price", func(b map[string]any) { b["price"] = -5 }, "price must be greater than 0"},
		{"unknown type", func(b map[string]any) { b["type"] = "Castle" }, "type must be one of [Flat House PG Shop Land]"},
		{"missing lat", func(b map[string]any) { delete(b, "lat") }, "lat is required"},
		{"lng out of range", func(b map[string]any) { b["lng"] = 181.0 }, "lng must be a valid longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := flatBody(25000)
			tt.mutate(body)
			resp, out := env.do(t, http.MethodPost, "/api/listings", tok, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, out["fields"], tt.field)
		})
	}

	resp, _ := env.do(t, http.MethodPost, "/api/listings", "", flatBody(25000))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var count int64
	env.db.Model(&models.Listing{}).Count(&count)
	assert.Zero(t, count)
}

func TestListingHandlers_CreateWithUploadedImage(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	tok := env.token(t, owner.ID)

	body := flatBody(25000)
	body["images"] = []string{testutil.PNGDataURI(t, 40, 30), "https://cdn.example.com/a.jpg"}
	resp, out := env.do(t, http.MethodPost, "/api/listings", tok, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)

	images := objectOf(t, out, "property")["images"].([]any)
	require.Len(t, images, 2)
	uploaded := images[0].(string)
	assert.True(t, strings.HasPrefix(uploaded, "/media/rental_properties_pictures/"), uploaded)
	assert.Equal(t, "https://cdn.example.com/a.jpg", images[1])

	key := strings.TrimPrefix(uploaded, "/media/")
	_, err := os.Stat(filepath.Join(env.srv.config.MediaLocalDir, filepath.FromSlash(key)))
	require.NoError(t, err)

	resp, _ = env.do(t, http.MethodGet, uploaded, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "local media is served by the API")
}

func TestListingHandlers_OwnerOnlyEdits(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	other := testutil.CreateUser(t, env.db, "Other")
	listing := testutil.CreateListing(t, env.db, owner.ID, 28.61, 77.21, 25000)
	path := fmt.Sprintf("/api/listings/%d", listing.ID)

	resp, body := env.do(t, http.MethodPut, path, env.token(t, other.ID), map[string]any{"price": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Property not found or unauthorized", body["error"])

	resp, body = env.do(t, http.MethodDelete, path, env.token(t, other.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Property not found or unauthorized", body["error"])

	resp, _ = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "listing survives a rejected delete")

	resp, body = env.do(t, http.MethodPut, path, env.token(t, owner.ID), map[string]any{"lat": 28.62})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "lat without lng")

	resp, body = env.do(t, http.MethodPut, path, env.token(t, owner.ID), map[string]any{"price": 27000, "lat": 28.62, "lng": 77.22})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	updated := objectOf(t, body, "property")
	assert.Equal(t, 27000.0, updated["price"])
	assert.Equal(t, []any{77.22, 28.62}, objectOf(t, updated, "location")["coordinates"])

	resp, body = env.do(t, http.MethodDelete, path, env.token(t, owner.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Property deleted successfully", body["message"])

	resp, _ = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListingHandlers_Promote(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	other := testutil.CreateUser(t, env.db, "Other")
	listing := testutil.CreateListing(t, env.db, owner.ID, 28.61, 77.21, 25000)

	before := time.Now()
	resp, body := env.do(t, http.MethodPost, "/api/listings/promote", env.token(t, owner.ID),
		map[string]any{"propertyId": listing.ID, "plan": "1_month"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Property promoted successfully", body["message"])
	assert.Equal(t, true, body["isFeatured"])
	expiry, err := time.Parse(time.RFC3339Nano, body["featuredExpiry"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), expiry, 2*time.Second)

	resp, body = env.do(t, http.MethodPost, "/api/listings/promote", env.token(t, other.ID),
		map[string]any{"propertyId": listing.ID, "plan": "1_week"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You do not own this property", body["error"])

	resp, _ = env.do(t, http.MethodPost, "/api/listings/promote", env.token(t, owner.ID),
		map[string]any{"propertyId": listing.ID, "plan": "1_year"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/listings/promote", env.token(t, owner.ID),
		map[string]any{"propertyId": 9999, "plan": "1_week"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListingHandlers_VisibilityAndOwnListings(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := testutil.CreateUser(t, env.db, "Owner")
	listing := testutil.CreateListing(t, env.db, owner.ID, 28.61, 77.21, 25000)
	tok := env.token(t, owner.ID)

	resp, body := env.do(t, http.MethodPatch, fmt.Sprintf("/api/listings/%d/visibility", listing.ID), tok,
		map[string]any{"isVisible": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, false, objectOf(t, body, "property")["isVisible"])

	resp, body = env.do(t, http.MethodGet, "/api/listings?"+delhiBox, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, listOf(t, body, "properties"))

	resp, body = env.do(t, http.MethodGet, "/api/user/listings", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, listOf(t, body, "properties"), 1)

	byID := fmt.Sprintf("/api/listings/%d", listing.ID)
	resp, _ = env.do(t, http.MethodGet, byID, tok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "owner still sees a hidden listing")
	resp, _ = env.do(t, http.MethodGet, byID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	stranger := testutil.CreateUser(t, env.db, "Stranger")
	resp, _ = env.do(t, http.MethodGet, byID, env.token(t, stranger.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, fmt.Sprintf("/api/listings/%d/visibility", listing.ID), tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
