// Package search turns a map viewport and filter parameters into a listing query.
package search

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"rentonmap/internal/models"
	"rentonmap/internal/validation"
)

const (
	// FallbackLimit caps the unfiltered fetch used when no viewport is given.
	FallbackLimit = 100

	DefaultMinPrice = 0
	DefaultMaxPrice = 10_000_000

	// anyValue is the client's "no preference" choice for select filters.
	anyValue = "all"
)

// Params are the raw query-string values of a listing search.
type Params struct {
	MinLat           string `query:"minLat"`
	MaxLat           string `query:"maxLat"`
	MinLng           string `query:"minLng"`
	MaxLng           string `query:"maxLng"`
	MinPrice         string `query:"minPrice"`
	MaxPrice         string `query:"maxPrice"`
	Type             string `query:"type" validate:"omitempty,oneof=all Flat House PG Shop Land"`
	Furnishing       string `query:"furnishing" validate:"omitempty,oneof=all Full Semi None"`
	TenantPreference string `query:"tenantPreference" validate:"omitempty,oneof=all Any Family Bachelors"`
}

// BBox is an axis-aligned latitude/longitude rectangle.
type BBox struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies in the box, edges included.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// ListingQuery is the storage-neutral predicate for a listing search.
// A nil Bounds means the fallback fetch: Limit rows, every other field ignored.
type ListingQuery struct {
	Bounds   *BBox
	MinPrice float64
	MaxPrice float64
	Type     models.ListingType
	Features []string
	Limit    int
}

// Fallback reports whether the query is the capped unfiltered fetch.
func (q ListingQuery) Fallback() bool {
	return q.Bounds == nil
}

// Matches evaluates the predicate against a single listing in memory.
// Hidden listings never match.
func (q ListingQuery) Matches(l *models.Listing) bool {
	if !l.IsVisible {
		return false
	}
	if q.Fallback() {
		return true
	}
	if !q.Bounds.Contains(l.Location.Lat, l.Location.Lng) {
		return false
	}
	if l.Price < q.MinPrice || l.Price > q.MaxPrice {
		return false
	}
	if q.Type != "" && l.Type != q.Type {
		return false
	}
	for _, f := range q.Features {
		if !slices.Contains(l.Features, f) {
			return false
		}
	}
	return true
}

// CacheKey renders the query as a stable string.
func (q ListingQuery) CacheKey() string {
	if q.Fallback() {
		return fmt.Sprintf("fallback:%d", q.Limit)
	}
	features := slices.Clone(q.Features)
	slices.Sort(features)
	return fmt.Sprintf("box:%g,%g,%g,%g|price:%g-%g|type:%s|features:%s",
		q.Bounds.South, q.Bounds.North, q.Bounds.West, q.Bounds.East,
		q.MinPrice, q.MaxPrice, q.Type, strings.Join(features, ","))
}

// Build validates p and converts it into a ListingQuery.
//
// Unknown enum values are always rejected; malformed prices only when a
// viewport is present. Missing or unparseable viewport edges are not an
// error: they select the fallback fetch, which ignores every other filter.
func Build(p Params) (ListingQuery, error) {
	if err := validation.Struct(p); err != nil {
		return ListingQuery{}, err
	}

	bounds, ok := parseBounds(p)
	if !ok {
		return ListingQuery{Limit: FallbackLimit}, nil
	}

	minPrice, err := parsePrice(p.MinPrice, DefaultMinPrice, "minPrice")
	if err != nil {
		return ListingQuery{}, err
	}
	maxPrice, err := parsePrice(p.MaxPrice, DefaultMaxPrice, "maxPrice")
	if err != nil {
		return ListingQuery{}, err
	}

	q := ListingQuery{
		Bounds:   &bounds,
		MinPrice: minPrice,
		MaxPrice: maxPrice,
	}
	if p.Type != "" && p.Type != anyValue {
		q.Type = models.ListingType(p.Type)
	}
	if tag, ok := models.FurnishingFeature(p.Furnishing); ok {
		q.Features = append(q.Features, tag)
	}
	if p.TenantPreference != "" && p.TenantPreference != anyValue && p.TenantPreference != models.TenantAny {
		q.Features = append(q.Features, p.TenantPreference)
	}
	return q, nil
}

func parseBounds(p Params) (BBox, bool) {
	var edges [4]float64
	for i, raw := range []string{p.MinLat, p.MaxLat, p.MinLng, p.MaxLng} {
		v, ok := parseFinite(raw)
		if !ok {
			return BBox{}, false
		}
		edges[i] = v
	}
	return BBox{South: edges[0], North: edges[1], West: edges[2], East: edges[3]}, true
}

func parsePrice(raw string, def float64, field string) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, ok := parseFinite(raw)
	if !ok {
		return 0, models.NewValidationError(field+" must be a number", field+" must be a number")
	}
	return v, nil
}

func parseFinite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
