package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

func newContentRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("content_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestStartOfUTCDay(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{
			time.Date(2025, 3, 14, 23, 59, 59, 999999999, time.UTC),
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			// 01:30+03:00 is 22:30 UTC of the previous day.
			time.Date(2025, 3, 15, 1, 30, 0, 0, time.FixedZone("EEST", 3*3600)),
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, c := range cases {
		if got := StartOfUTCDay(c.in); !got.Equal(c.want) {
			t.Fatalf("StartOfUTCDay(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInsertContent_RoundTrip(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()

	payload := json.RawMessage(`{"main":{"temp":21.4}}`)
	fetched := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	row, err := InsertContent(ctx, db, domain.KindWeatherUpdateNow,
		map[string]any{"location": "Athens", "units": "metric"},
		payload,
		map[string]string{"location": "Athens"},
		fetched)
	if err != nil {
		t.Fatalf("InsertContent: %v", err)
	}
	if row.ID == "" || row.SubscriptionType != "WeatherUpdateNow" {
		t.Fatalf("unexpected row: %+v", row)
	}

	got, err := LatestContent(ctx, db, domain.KindWeatherUpdateNow,
		map[string]string{"location": "Athens"}, StartOfUTCDay(fetched))
	if err != nil {
		t.Fatalf("LatestContent: %v", err)
	}
	if got.Data != string(payload) {
		t.Fatalf("payload mismatch: %q", got.Data)
	}

	var discs []domain.ContentDiscriminator
	if err := db.Where("content_id = ?", row.ID).Find(&discs).Error; err != nil {
		t.Fatalf("load discriminators: %v", err)
	}
	if len(discs) != 1 || discs[0].Key != "location" || discs[0].Value != "Athens" {
		t.Fatalf("unexpected discriminators: %+v", discs)
	}
}

func TestLatestContent_MissIsErrNotFound(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})

	_, err := LatestContent(context.Background(), db, domain.KindWeatherUpdateNow,
		map[string]string{"location": "Athens"}, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty cache, got %v", err)
	}
}

func TestLatestContent_DiscriminatorsMustAllMatch(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()
	fetched := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if _, err := InsertContent(ctx, db, domain.KindNewsTopStories, nil,
		json.RawMessage(`{"data":[]}`),
		map[string]string{"language": "en", "categories": "general"},
		fetched); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Same language, different categories: no match.
	_, err := LatestContent(ctx, db, domain.KindNewsTopStories,
		map[string]string{"language": "en", "categories": "tech"}, StartOfUTCDay(fetched))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial discriminator match should miss, got %v", err)
	}

	// Exact match hits.
	if _, err := LatestContent(ctx, db, domain.KindNewsTopStories,
		map[string]string{"language": "en", "categories": "general"}, StartOfUTCDay(fetched)); err != nil {
		t.Fatalf("exact match should hit: %v", err)
	}
}

func TestLatestContent_KindIsolation(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()
	fetched := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if _, err := InsertContent(ctx, db, domain.KindWeatherUpdateNow, nil,
		json.RawMessage(`{}`), nil, fetched); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := LatestContent(ctx, db, domain.KindNewsTopStories, nil, StartOfUTCDay(fetched))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("other kind's rows must not match, got %v", err)
	}
}

func TestLatestContent_FreshnessFloorExcludesYesterday(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()

	// Fetched 23:59:59 on May 31; lookup at 00:00:01 on June 1 must miss.
	yesterday := time.Date(2025, 5, 31, 23, 59, 59, 0, time.UTC)
	now := time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC)

	if _, err := InsertContent(ctx, db, domain.KindWeatherUpdateNow, nil,
		json.RawMessage(`{"stale":true}`),
		map[string]string{"location": "Athens"}, yesterday); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := LatestContent(ctx, db, domain.KindWeatherUpdateNow,
		map[string]string{"location": "Athens"}, StartOfUTCDay(now))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("yesterday's row must be stale at the day boundary, got %v", err)
	}
}

func TestLatestContent_MostRecentWins(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()

	early := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)
	disc := map[string]string{"location": "Athens"}

	if _, err := InsertContent(ctx, db, domain.KindWeatherUpdateNow, nil,
		json.RawMessage(`{"v":1}`), disc, early); err != nil {
		t.Fatalf("seed early: %v", err)
	}
	if _, err := InsertContent(ctx, db, domain.KindWeatherUpdateNow, nil,
		json.RawMessage(`{"v":2}`), disc, late); err != nil {
		t.Fatalf("seed late: %v", err)
	}

	got, err := LatestContent(ctx, db, domain.KindWeatherUpdateNow, disc, StartOfUTCDay(late))
	if err != nil {
		t.Fatalf("LatestContent: %v", err)
	}
	if got.Data != `{"v":2}` {
		t.Fatalf("expected latest row, got %q", got.Data)
	}
}

func TestLatestContents_LimitAndOrder(t *testing.T) {
	db := newContentRepoDB(t, &domain.CachedContent{}, &domain.ContentDiscriminator{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"v":%d}`, i))
		if _, err := InsertContent(ctx, db, domain.KindNewsTopStories, nil,
			payload, nil, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	rows, err := LatestContents(ctx, db, domain.KindNewsTopStories, nil, StartOfUTCDay(base), 2)
	if err != nil {
		t.Fatalf("LatestContents: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Data != `{"v":2}` || rows[1].Data != `{"v":1}` {
		t.Fatalf("unexpected order: %q, %q", rows[0].Data, rows[1].Data)
	}
}

func TestInsertContent_Error_NoTable(t *testing.T) {
	db := newContentRepoDB(t /* no migrations */)
	_, err := InsertContent(context.Background(), db, domain.KindWeatherUpdateNow,
		nil, json.RawMessage(`{}`), nil, time.Now().UTC())
	if err == nil {
		t.Fatal("expected error inserting without tables")
	}
}
