package cache

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLGeocodeCache keeps resolved delivery addresses in the geocode_cache
// table of the orders database (SQLite or Postgres). Rows older than MaxAge
// are treated as misses and rewritten on the next resolve.
type SQLGeocodeCache struct {
	DB     *sqlx.DB
	MaxAge time.Duration
	now    func() time.Time
}

// NewSQLGeocodeCache builds the cache; maxAge <= 0 keeps entries forever.
func NewSQLGeocodeCache(db *sqlx.DB, maxAge time.Duration) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db, MaxAge: maxAge, now: time.Now}
}

type geocodeRow struct {
	Address string  `db:"address"`
	Lat     float64 `db:"lat"`
	Lng     float64 `db:"lng"`
}

// uniqueAddresses drops blanks and repeats so one lookup batch never binds
// the same key twice.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	uniq := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if a = strings.TrimSpace(a); a != "" && !seen[a] {
			seen[a] = true
			uniq = append(uniq, a)
		}
	}
	return uniq
}

func (s *SQLGeocodeCache) GetMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.GeoPoint, err error) {
	defer obs.Time(ctx, "geocode.sqlcache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}
	uniq := uniqueAddresses(addresses)
	if len(uniq) == 0 {
		return map[string]domain.GeoPoint{}, nil
	}

	var cutoff int64
	if s.MaxAge > 0 {
		cutoff = s.now().Add(-s.MaxAge).Unix()
	}
	q, args, err := sqlx.In(
		`SELECT address, lat, lng FROM geocode_cache WHERE address IN (?) AND resolved_at >= ?;`,
		uniq, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("geocode cache lookup: build query: %w", err)
	}

	var rows []geocodeRow
	if err := s.DB.SelectContext(ctx, &rows, s.DB.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("geocode cache lookup: %w", err)
	}

	hits := make(map[string]domain.GeoPoint, len(rows))
	for _, r := range rows {
		hits[r.Address] = domain.GeoPoint{Lat: r.Lat, Lng: r.Lng}
	}
	return hits, nil
}

// PutMany upserts every result in one transaction, stamping resolved_at.
func (s *SQLGeocodeCache) PutMany(ctx context.Context, results map[string]domain.GeoPoint) (err error) {
	defer obs.Time(ctx, "geocode.sqlcache.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}
	resolvedAt := s.now().Unix()

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("geocode cache store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
	INSERT INTO geocode_cache (address, lat, lng, resolved_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (address) DO UPDATE
	SET lat = excluded.lat,
		lng = excluded.lng,
		resolved_at = excluded.resolved_at;
	`))
	if err != nil {
		return fmt.Errorf("geocode cache store: prepare: %w", err)
	}
	defer stmt.Close()

	for addr, p := range results {
		if strings.TrimSpace(addr) == "" {
			return errors.New("geocode cache store: empty address key")
		}
		if !p.IsValid() {
			return fmt.Errorf("geocode cache store addr=%q: invalid point %+v", addr, p)
		}
		if _, err := stmt.ExecContext(ctx, addr, p.Lat, p.Lng, resolvedAt); err != nil {
			return fmt.Errorf("geocode cache store addr=%q: %w", addr, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("geocode cache store: commit: %w", err)
	}
	return nil
}
