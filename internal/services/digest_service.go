// Package services – DigestService
//
// This file implements the subscription router and the cache-or-fetch
// resolver machinery. Given a user's ordered subscription list, the router
// dispatches each entry to the resolver registered for its provider kind and
// merges the outcomes into one bundle. Every outcome is data: a provider's
// native payload or an error string, never a raised fault. A failed
// subscription cannot abort the rest of the list, and an all-error bundle is
// a valid result; the caller decides what to do with it.
//
// Each resolver runs a two-state procedure per subscription: look up the
// cache with today's UTC-day freshness floor, return the hit as-is, otherwise
// call the provider client once, persist the result (write failures are
// logged and swallowed), and return the fresh payload. Lookup errors other
// than a plain miss also fall through to a live fetch.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-digest-backend/internal/domain"
	"github.com/tbourn/go-digest-backend/internal/providers"
	"github.com/tbourn/go-digest-backend/internal/repo"
)

// Result is the two-variant outcome of one resolved subscription: either the
// provider's native payload or a human-readable error string, never both.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// OK reports whether the result carries a payload rather than an error.
func (r Result) OK() bool { return r.Err == "" }

// Bundle is the merged outcome of one aggregation run, keyed by provider key
// ("weather", "news"). One slot per kind: duplicate subscriptions of the same
// kind overwrite earlier entries, last processed wins. Bundles are transient;
// they are handed to the renderer and discarded.
type Bundle map[string]Result

// ContentStore is the cache access contract required by resolvers.
// Implementations persist fetched payloads and serve latest-row lookups.
type ContentStore interface {
	// Latest returns the newest payload matching kind, all discriminators,
	// and fetchedAt >= since, or repo.ErrNotFound on a miss.
	Latest(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, discriminators map[string]string, since time.Time) (json.RawMessage, error)

	// Insert appends a fetched payload with its discriminator rows.
	Insert(ctx context.Context, db *gorm.DB, kind domain.ProviderKind, args map[string]any, payload json.RawMessage, discriminators map[string]string, fetchedAt time.Time) error
}

// WeatherFetcher is the provider client contract for current weather.
type WeatherFetcher interface {
	Fetch(ctx context.Context, location, units string) (json.RawMessage, error)
}

// NewsFetcher is the provider client contract for top stories.
type NewsFetcher interface {
	Fetch(ctx context.Context, q providers.NewsQuery) (json.RawMessage, error)
}

// Resolver turns one subscription into a payload, consulting the cache
// before calling the provider.
type Resolver interface {
	// Kind is the subscription tag this resolver handles.
	Kind() domain.ProviderKind
	// Key is the bundle key results are recorded under.
	Key() string
	// Resolve returns the cached or freshly fetched payload for sub.
	Resolve(ctx context.Context, sub domain.Subscription) (json.RawMessage, error)
}

// NewsDefaults are the arguments applied to a news subscription when its
// details omit them.
type NewsDefaults struct {
	Language   string // default "en"
	Categories string // default "general"
	Domains    string // comma-separated source allowlist
	Limit      int    // default 1
	Search     string // free-text filter passed to the API
}

// DigestService routes subscription lists through the registered resolvers.
// Adding a provider is a registry entry via Register, not another branch.
type DigestService struct {
	DB    *gorm.DB
	Store ContentStore

	// Now is the clock used for freshness decisions; overridable in tests.
	Now func() time.Time

	resolvers map[domain.ProviderKind]Resolver
}

// NewDigestService constructs a DigestService with the weather and news
// resolvers registered.
func NewDigestService(db *gorm.DB, store ContentStore, weather WeatherFetcher, news NewsFetcher, newsDefaults NewsDefaults) *DigestService {
	s := &DigestService{
		DB:        db,
		Store:     store,
		Now:       time.Now,
		resolvers: make(map[domain.ProviderKind]Resolver),
	}
	s.Register(&weatherResolver{svc: s, client: weather})
	s.Register(&newsResolver{svc: s, client: news, defaults: newsDefaults})
	return s
}

// Register installs a resolver for its kind, replacing any previous one.
func (s *DigestService) Register(r Resolver) {
	s.resolvers[r.Kind()] = r
}

// Route processes subscriptions in order and returns the merged bundle.
//
// Unrecognized kinds are skipped without recording an error; the skip is
// logged so silent drops stay visible in debug output. Per-subscription
// failures are captured as error strings under the provider's key and never
// prevent later subscriptions from being processed.
func (s *DigestService) Route(ctx context.Context, subs []domain.Subscription) Bundle {
	bundle := make(Bundle, len(subs))

	for _, sub := range subs {
		r, ok := s.resolvers[sub.Name]
		if !ok {
			log.Debug().Str("kind", string(sub.Name)).Msg("no resolver registered, skipping subscription")
			continue
		}

		payload, err := r.Resolve(ctx, sub)
		if err != nil {
			log.Warn().Err(err).Str("provider", r.Key()).Msg("subscription resolution failed")
			bundle[r.Key()] = Result{Err: fmt.Sprintf("Failed to fetch %s: %v", r.Key(), err)}
			continue
		}
		bundle[r.Key()] = Result{Payload: payload}
	}

	return bundle
}

// resolve runs the shared cache-or-fetch procedure: cache hit wins, a miss or
// lookup error falls through to exactly one provider call, and a successful
// fetch is persisted so later lookups on the same UTC day hit the cache.
// Persist failures must not fail the fetch that produced the data.
func (s *DigestService) resolve(ctx context.Context, kind domain.ProviderKind, args map[string]any, discriminators map[string]string, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	since := repo.StartOfUTCDay(s.Now())

	cached, err := s.Store.Latest(ctx, s.DB, kind, discriminators, since)
	if err == nil {
		log.Debug().Str("kind", string(kind)).Msg("cache hit")
		return cached, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		// A broken lookup is treated like a miss; it only surfaces if the
		// live fetch also fails.
		log.Warn().Err(err).Str("kind", string(kind)).Msg("cache lookup failed, fetching live")
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Store.Insert(ctx, s.DB, kind, args, payload, discriminators, s.Now()); err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("failed to cache fetched payload")
	}
	return payload, nil
}

// weatherResolver resolves WeatherUpdateNow subscriptions. The cache
// discriminator is the requested location.
type weatherResolver struct {
	svc    *DigestService
	client WeatherFetcher
}

func (r *weatherResolver) Kind() domain.ProviderKind { return domain.KindWeatherUpdateNow }
func (r *weatherResolver) Key() string               { return "weather" }

// Resolve applies the weather defaults (units: metric) and runs the
// cache-or-fetch procedure for the subscription's location.
func (r *weatherResolver) Resolve(ctx context.Context, sub domain.Subscription) (json.RawMessage, error) {
	loc := sub.DetailString("location", "")
	if loc == "" {
		return nil, fmt.Errorf("subscription has no location")
	}
	units := sub.DetailString("units", "metric")

	args := map[string]any{"location": loc, "units": units}
	discriminators := map[string]string{"location": loc}

	return r.svc.resolve(ctx, r.Kind(), args, discriminators, func(ctx context.Context) (json.RawMessage, error) {
		return r.client.Fetch(ctx, loc, units)
	})
}

// newsResolver resolves NewsTopStories subscriptions. Cache discriminators
// are the canonical language code and the category list.
type newsResolver struct {
	svc      *DigestService
	client   NewsFetcher
	defaults NewsDefaults
}

func (r *newsResolver) Kind() domain.ProviderKind { return domain.KindNewsTopStories }
func (r *newsResolver) Key() string               { return "news" }

// Resolve fills missing details with the configured news defaults and runs
// the cache-or-fetch procedure.
func (r *newsResolver) Resolve(ctx context.Context, sub domain.Subscription) (json.RawMessage, error) {
	lang := canonicalLanguage(sub.DetailString("language", r.defaults.Language))
	categories := sub.DetailString("categories", r.defaults.Categories)
	domains := sub.DetailString("domains", r.defaults.Domains)
	limit := sub.DetailInt("limit", r.defaults.Limit)
	if limit < 1 {
		limit = 1
	}

	args := map[string]any{
		"language":   lang,
		"categories": categories,
		"domains":    domains,
		"limit":      limit,
	}
	discriminators := map[string]string{
		"language":   lang,
		"categories": categories,
	}

	return r.svc.resolve(ctx, r.Kind(), args, discriminators, func(ctx context.Context) (json.RawMessage, error) {
		return r.client.Fetch(ctx, providers.NewsQuery{
			Limit:       limit,
			Language:    lang,
			Categories:  categories,
			Domains:     domains,
			Search:      r.defaults.Search,
			PublishedOn: r.svc.Now(),
		})
	})
}

// canonicalLanguage reduces a BCP 47 tag to its base language code so cache
// discriminators stay stable across spellings ("en-US", "EN" → "en").
// Unparseable tags fall back to English.
func canonicalLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}
