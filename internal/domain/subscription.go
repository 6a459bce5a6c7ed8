// Subscription value types.
//
// A subscription is a user's declared interest in a content provider plus the
// provider-specific arguments used to query it. Subscriptions live inside the
// user row as a JSON array; this file defines the parsed in-memory shape and
// the strict decoding rules applied before the aggregation run starts.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ProviderKind tags a subscription with the provider it targets. The set is
// open-ended: kinds without a registered resolver are skipped during
// aggregation rather than rejected.
type ProviderKind string

// Known provider kinds.
const (
	KindWeatherUpdateNow ProviderKind = "WeatherUpdateNow"
	KindNewsTopStories   ProviderKind = "NewsTopStories"
)

// ErrMalformedSubscriptions is returned when a user's subscriptions value is
// not a JSON array. A malformed list is fatal to the whole aggregation run
// and must be rejected before any subscription is processed.
var ErrMalformedSubscriptions = errors.New("subscriptions must be a JSON array")

// Subscription is one entry of a user's subscription list.
//
// Details carries the provider-specific arguments (location, units, language,
// categories, limit, ...). Missing keys are filled with provider defaults by
// the resolver, not here.
type Subscription struct {
	Name    ProviderKind   `json:"name"`
	Details map[string]any `json:"details"`
}

// ParseSubscriptions decodes a raw subscriptions value into an ordered list.
//
// Rules:
//   - null, empty input, or an empty array decode to an empty list.
//   - Anything other than a JSON array (an object, a string, a number) yields
//     ErrMalformedSubscriptions.
//   - Entries with a nil details object get an empty map so resolvers can
//     read defaults without nil checks.
func ParseSubscriptions(raw []byte) ([]Subscription, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Subscription{}, nil
	}
	if trimmed[0] != '[' {
		return nil, ErrMalformedSubscriptions
	}

	var subs []Subscription
	if err := json.Unmarshal(trimmed, &subs); err != nil {
		return nil, ErrMalformedSubscriptions
	}
	for i := range subs {
		if subs[i].Details == nil {
			subs[i].Details = map[string]any{}
		}
	}
	return subs, nil
}

// DetailString reads a string-valued detail, returning def when the key is
// absent, empty, or not a string.
func (s Subscription) DetailString(key, def string) string {
	if v, ok := s.Details[key]; ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return def
}

// DetailInt reads an integer-valued detail, returning def when the key is
// absent or not numeric. JSON numbers decode as float64, so both forms are
// accepted.
func (s Subscription) DetailInt(key string, def int) int {
	switch v := s.Details[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
