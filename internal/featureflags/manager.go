// Package featureflags evaluates FEATURE_FLAGS switches for optional
// backends and per-user rollouts.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Known flags.
const (
	// WebPImages encodes uploaded listing photos as WebP instead of JPEG.
	WebPImages = "webp_images"
	// GeoIndexSearch answers viewport searches from the Mongo mirror.
	GeoIndexSearch = "geo_index_search"
	// SearchCache caches search results in Redis.
	SearchCache = "search_cache"
)

// Defaults apply when FEATURE_FLAGS does not mention a known flag.
var Defaults = map[string]string{
	WebPImages:     "on",
	GeoIndexSearch: "on",
	SearchCache:    "on",
}

// Manager evaluates flags from a key=value list such as
// "webp_images=off,geo_index_search=25%".
type Manager struct {
	flags map[string]string
}

// NewManager parses raw on top of Defaults. Malformed pairs are ignored.
func NewManager(raw string) *Manager {
	out := maps.Clone(Defaults)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is on for a given user.
// Values: on/true/1, off/false/0, or N% for a deterministic per-user rollout.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if userID == 0 {
		return false
	}
	return rolloutBucket(name, userID) < pct
}

// On evaluates a flag that does not depend on the caller. Percentage
// rollouts count as off.
func (m *Manager) On(name string) bool {
	return m.Enabled(name, 0)
}

// Raw returns a copy of the effective flag values.
func (m *Manager) Raw() map[string]string {
	return maps.Clone(m.flags)
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", normalize(name), userID)
	return int(h.Sum32() % 100)
}
