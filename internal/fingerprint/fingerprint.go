package fingerprint

import (
	"context"
	"sort"
	"strings"
)

// Observation is a single access point seen during a Wi-Fi scan.
type Observation struct {
	SSID        string `json:"ssid"`
	BSSID       string `json:"bssid"`
	SignalLevel int    `json:"signal_level"`
}

// UnavailableBSSID marks a placeholder observation emitted when the device
// cannot scan at all (missing permission, disabled radio). It lets callers
// tell "no networks nearby" apart from "cannot scan".
const UnavailableBSSID = "00:00:00:00:00:00"

// Unavailable returns the placeholder observation for a failed scan.
func Unavailable() Observation {
	return Observation{SSID: "unavailable", BSSID: UnavailableBSSID, SignalLevel: 0}
}

// IsUnavailable reports whether the observation is the cannot-scan placeholder.
func (o Observation) IsUnavailable() bool {
	return strings.EqualFold(o.BSSID, UnavailableBSSID)
}

// Collector gathers Wi-Fi observations on a device. Implementations wrap the
// platform scan API; tests and the simulator use a scripted fake.
type Collector interface {
	// Collect triggers or reuses the latest scan and returns up to maxResults
	// observations ranked by signal strength. An empty slice means no networks
	// were visible; it is not an error.
	Collect(ctx context.Context, maxResults int) ([]Observation, error)
}

// Rank sorts observations by descending signal level, drops duplicate access
// points (BSSID compared case-insensitively, first occurrence wins) and
// truncates to maxResults.
func Rank(obs []Observation, maxResults int) []Observation {
	if maxResults <= 0 {
		maxResults = 8
	}
	ranked := make([]Observation, len(obs))
	copy(ranked, obs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SignalLevel > ranked[j].SignalLevel
	})

	seen := make(map[string]struct{}, len(ranked))
	out := ranked[:0]
	for _, o := range ranked {
		key := strings.ToLower(o.BSSID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
		if len(out) == maxResults {
			break
		}
	}
	return out
}

// Similarity returns the fraction of stored access points that the observer
// also saw, matching on BSSID case-insensitively. Placeholder observations
// never count as a match. An empty stored fingerprint yields 0.
func Similarity(stored, observed []Observation) float64 {
	if len(stored) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(observed))
	for _, o := range observed {
		if o.IsUnavailable() {
			continue
		}
		seen[strings.ToLower(o.BSSID)] = struct{}{}
	}
	shared := 0
	total := 0
	for _, s := range stored {
		if s.IsUnavailable() {
			continue
		}
		total++
		if _, ok := seen[strings.ToLower(s.BSSID)]; ok {
			shared++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(shared) / float64(total)
}
