package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix       = "user:%d"
	SavedKeyPrefix      = "user:%d:saved"
	ListingKeyPrefix    = "listing:%d"
	ListingsVersionKey  = "listings:version"
	SearchKeyPrefix     = "listings:search:v%d:%s"
	FeaturedSweepLockID = "listings:featured-sweep"
)

const (
	UserTTL    = 5 * time.Minute
	ListingTTL = 10 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func SavedKey(userID uint) string {
	return fmt.Sprintf(SavedKeyPrefix, userID)
}

func ListingKey(listingID uint) string {
	return fmt.Sprintf(ListingKeyPrefix, listingID)
}

// SearchKey namespaces a search result under the current listings version so
// any listing write makes older entries unreachable.
func SearchKey(version int64, queryKey string) string {
	return fmt.Sprintf(SearchKeyPrefix, version, queryKey)
}

// ListingsVersion returns the current listings version, 0 when unset or when
// Redis is unavailable.
func ListingsVersion(ctx context.Context) int64 {
	if client == nil {
		return 0
	}
	v, err := client.Get(ctx, ListingsVersionKey).Int64()
	if err != nil {
		return 0
	}
	return v
}

// BumpListingsVersion invalidates every cached search result.
func BumpListingsVersion(ctx context.Context) {
	if client != nil {
		client.Incr(ctx, ListingsVersionKey)
	}
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID), SavedKey(userID))
}

// InvalidateListing drops the cached listing and every cached search.
func InvalidateListing(ctx context.Context, listingID uint) {
	Invalidate(ctx, ListingKey(listingID))
	BumpListingsVersion(ctx)
}

// TryLock takes a best-effort lock so only one replica runs a periodic job.
// Without Redis the caller always wins.
func TryLock(ctx context.Context, key string, ttl time.Duration) bool {
	if client == nil {
		return true
	}
	ok, err := client.SetNX(ctx, "lock:"+key, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
