// Package geoindex mirrors listing locations into MongoDB so viewport
// searches can be answered from a spatial index before rows are hydrated
// from the relational store.
package geoindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentonmap/internal/models"
	"rentonmap/internal/observability"
	"rentonmap/internal/search"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the mirror collection inside the configured database.
const CollectionName = "listing_locations"

// Index answers viewport queries with listing ids.
type Index interface {
	Upsert(ctx context.Context, l *models.Listing) error
	Remove(ctx context.Context, id uint) error
	Search(ctx context.Context, q search.ListingQuery) ([]uint, error)
}

// Document is the mirrored shape of one listing.
type Document struct {
	ID       uint      `bson:"_id"`
	Location geoJSON   `bson:"location"`
	Lat      float64   `bson:"lat"`
	Lng      float64   `bson:"lng"`
	Price    float64   `bson:"price"`
	Type     string    `bson:"type"`
	Features []string  `bson:"features"`
	Visible  bool      `bson:"visible"`
	Updated  time.Time `bson:"updated_at"`
}

type geoJSON struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"`
}

// DocumentFor converts a listing into its mirror document.
func DocumentFor(l *models.Listing) Document {
	features := l.Features
	if features == nil {
		features = []string{}
	}
	return Document{
		ID:       l.ID,
		Location: geoJSON{Type: "Point", Coordinates: [2]float64{l.Location.Lng, l.Location.Lat}},
		Lat:      l.Location.Lat,
		Lng:      l.Location.Lng,
		Price:    l.Price,
		Type:     string(l.Type),
		Features: features,
		Visible:  l.IsVisible,
		Updated:  time.Now().UTC(),
	}
}

// BuildFilter renders q as a Mongo filter. Bounds and price are inclusive;
// the fallback query only excludes hidden listings.
func BuildFilter(q search.ListingQuery) bson.M {
	filter := bson.M{"visible": true}
	if q.Fallback() {
		return filter
	}
	b := q.Bounds
	filter["lat"] = bson.M{"$gte": b.South, "$lte": b.North}
	filter["lng"] = bson.M{"$gte": b.West, "$lte": b.East}
	filter["price"] = bson.M{"$gte": q.MinPrice, "$lte": q.MaxPrice}
	if q.Type != "" {
		filter["type"] = string(q.Type)
	}
	if len(q.Features) > 0 {
		filter["features"] = bson.M{"$all": q.Features}
	}
	return filter
}

// MongoIndex is the MongoDB-backed Index.
type MongoIndex struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, checks the connection and prepares the collection.
func Connect(ctx context.Context, uri, database string) (*MongoIndex, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	idx := NewMongoIndex(client.Database(database).Collection(CollectionName))
	idx.client = client
	if err := idx.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return idx, nil
}

// NewMongoIndex wraps an existing collection.
func NewMongoIndex(coll *mongo.Collection) *MongoIndex {
	return &MongoIndex{coll: coll}
}

// EnsureIndexes creates the spatial and range indexes used by Search.
func (m *MongoIndex) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("location_2dsphere"),
		},
		{
			Keys:    bson.D{{Key: "visible", Value: 1}, {Key: "lat", Value: 1}, {Key: "lng", Value: 1}},
			Options: options.Index().SetName("visible_lat_lng"),
		},
	})
	if err != nil {
		return fmt.Errorf("create geo indexes: %w", err)
	}
	return nil
}

func (m *MongoIndex) Upsert(ctx context.Context, l *models.Listing) (err error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "mongodb", "geoindex.Upsert")
	defer func() { observability.EndSpan(span, err) }()

	doc := DocumentFor(l)
	_, err = m.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert listing %d: %w", l.ID, err)
	}
	return nil
}

func (m *MongoIndex) Remove(ctx context.Context, id uint) (err error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "mongodb", "geoindex.Remove")
	defer func() { observability.EndSpan(span, err) }()

	if _, err = m.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("remove listing %d: %w", id, err)
	}
	return nil
}

// Search returns matching listing ids in ascending order.
func (m *MongoIndex) Search(ctx context.Context, q search.ListingQuery) (ids []uint, err error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "mongodb", "geoindex.Search")
	defer func() { observability.EndSpan(span, err) }()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := m.coll.Find(ctx, BuildFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	ids = []uint{}
	for cur.Next(ctx) {
		var row struct {
			ID uint `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode listing id: %w", err)
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// Close disconnects the client created by Connect.
func (m *MongoIndex) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}

// Ping checks the server behind the collection.
func (m *MongoIndex) Ping(ctx context.Context) error {
	return m.coll.Database().Client().Ping(ctx, nil)
}
