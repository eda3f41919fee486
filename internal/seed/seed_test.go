package seed

import (
	"context"
	"testing"

	"rentonmap/internal/models"
	"rentonmap/internal/search"
	"rentonmap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_PopulatesDatabase(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	res, err := Seed(ctx, db, Options{NumUsers: 4, ListingsPerUser: 3, NumConversations: 6, RandomSeed: 7})
	require.NoError(t, err)
	assert.Len(t, res.Users, 4)
	assert.Len(t, res.Listings, 12)

	var users, listings, features, conversations int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Listing{}).Count(&listings)
	db.Model(&models.ListingFeature{}).Count(&features)
	db.Model(&models.Conversation{}).Count(&conversations)
	assert.EqualValues(t, 4, users)
	assert.EqualValues(t, 12, listings)
	assert.GreaterOrEqual(t, features, int64(24), "every listing carries furnishing and tenant tags")
	assert.LessOrEqual(t, conversations, int64(res.Conversations))

	var convs []models.Conversation
	require.NoError(t, db.Preload("Participants").Find(&convs).Error)
	for _, c := range convs {
		assert.Len(t, c.Participants, 2)
		assert.NotEqual(t, models.StartedConversationText, c.LastMessage)
	}
}

func TestSeed_CleanRemovesPreviousRun(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := Seed(ctx, db, Options{NumUsers: 3, ListingsPerUser: 1, NumConversations: 2, RandomSeed: 1})
	require.NoError(t, err)
	_, err = Seed(ctx, db, Options{NumUsers: 2, ListingsPerUser: 1, ShouldClean: true, RandomSeed: 2})
	require.NoError(t, err)

	var users, conversations int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Conversation{}).Count(&conversations)
	assert.EqualValues(t, 2, users)
	assert.Zero(t, conversations)
}

func TestSeed_DryRunWritesNothing(t *testing.T) {
	db := testutil.NewTestDB(t)
	res, err := Seed(context.Background(), db, Options{NumUsers: 3, ListingsPerUser: 2, NumConversations: 3, DryRun: true, RandomSeed: 5})
	require.NoError(t, err)
	assert.Len(t, res.Listings, 6)

	var listings int64
	db.Model(&models.Listing{}).Count(&listings)
	assert.Zero(t, listings)
}

type collectingGeo struct{ ids []uint }

func (g *collectingGeo) Upsert(_ context.Context, l *models.Listing) error {
	g.ids = append(g.ids, l.ID)
	return nil
}

func (g *collectingGeo) Remove(context.Context, uint) error { return nil }

func (g *collectingGeo) Search(context.Context, search.ListingQuery) ([]uint, error) {
	return g.ids, nil
}

func TestSeed_MirrorsListingsIntoGeoIndex(t *testing.T) {
	db := testutil.NewTestDB(t)
	geo := &collectingGeo{}

	res, err := Seed(context.Background(), db, Options{NumUsers: 2, ListingsPerUser: 2, RandomSeed: 3, Geo: geo})
	require.NoError(t, err)

	want := make([]uint, 0, len(res.Listings))
	for _, l := range res.Listings {
		want = append(want, l.ID)
	}
	assert.ElementsMatch(t, want, geo.ids)
}
