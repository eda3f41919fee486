package geoindex

import (
	"context"
	"fmt"

	"rentonmap/internal/models"
	"rentonmap/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultReindexBatch is the number of listings read and written per round trip.
const DefaultReindexBatch = 500

// Source streams every stored listing, hidden ones included, in id order.
type Source interface {
	EachBatch(ctx context.Context, size int, fn func([]*models.Listing) error) error
}

// batchUpserter is implemented by indexes that can write a whole batch at once.
type batchUpserter interface {
	UpsertMany(ctx context.Context, listings []*models.Listing) error
}

// Reindex copies every listing from src into idx and returns how many were
// written. Mirror entries for listings that no longer exist are left alone;
// searches drop them when hydrating from the primary store.
func Reindex(ctx context.Context, idx Index, src Source, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultReindexBatch
	}
	written := 0
	err := src.EachBatch(ctx, batch, func(rows []*models.Listing) error {
		if bu, ok := idx.(batchUpserter); ok {
			if err := bu.UpsertMany(ctx, rows); err != nil {
				return err
			}
			written += len(rows)
			return nil
		}
		for _, l := range rows {
			if err := idx.Upsert(ctx, l); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("reindex after %d listings: %w", written, err)
	}
	return written, nil
}

// UpsertMany replaces the mirror documents of listings in one unordered bulk write.
func (m *MongoIndex) UpsertMany(ctx context.Context, listings []*models.Listing) (err error) {
	if len(listings) == 0 {
		return nil
	}
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "mongodb", "geoindex.UpsertMany")
	defer func() { observability.EndSpan(span, err) }()

	writes := make([]mongo.WriteModel, 0, len(listings))
	for _, l := range listings {
		doc := DocumentFor(l)
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err = m.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert %d listings: %w", len(listings), err)
	}
	return nil
}
