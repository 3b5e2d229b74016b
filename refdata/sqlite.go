// refdata/sqlite.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package refdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/math"

	"github.com/brunoga/deep"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS airports (
	icao             TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	lon              REAL NOT NULL,
	lat              REAL NOT NULL,
	elevation        INTEGER NOT NULL,
	pattern_altitude INTEGER NOT NULL,
	atis             TEXT NOT NULL,
	clearance        INTEGER NOT NULL,
	ground           INTEGER NOT NULL,
	tower            INTEGER NOT NULL,
	departure        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runways (
	icao    TEXT NOT NULL REFERENCES airports(icao),
	seq     INTEGER NOT NULL,
	id      TEXT NOT NULL,
	heading REAL NOT NULL,
	lon     REAL NOT NULL,
	lat     REAL NOT NULL,
	traffic TEXT NOT NULL,
	PRIMARY KEY (icao, id)
);

CREATE TABLE IF NOT EXISTS taxi_routes (
	icao       TEXT NOT NULL REFERENCES airports(icao),
	seq        INTEGER NOT NULL,
	from_loc   TEXT NOT NULL,
	runway     TEXT NOT NULL,
	taxiways   TEXT NOT NULL,
	hold_short TEXT NOT NULL,
	PRIMARY KEY (icao, seq)
);
`

const sqliteCacheSize = 64

// SQLiteProvider serves airports from a reference database, opened read
// only. Airports that have been read are cached.
type SQLiteProvider struct {
	db    *sql.DB
	cache *lru.Cache[string, Airport]
	lg    *log.Logger
}

func OpenSQLiteProvider(path string, lg *log.Logger) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cache, err := lru.New[string, Airport](sqliteCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteProvider{db: db, cache: cache, lg: lg}, nil
}

func (p *SQLiteProvider) Close() error { return p.db.Close() }

func (p *SQLiteProvider) Airport(icao string) (Airport, error) {
	icao = strings.ToUpper(icao)
	if ap, ok := p.cache.Get(icao); ok {
		return deep.Copy(ap)
	}

	ap, err := p.query(context.Background(), icao)
	if err != nil {
		return Airport{}, err
	}
	p.lg.Debug("loaded airport", slog.String("icao", icao), slog.Int("runways", len(ap.Runways)))
	p.cache.Add(icao, deep.MustCopy(ap))
	return ap, nil
}

func (p *SQLiteProvider) query(ctx context.Context, icao string) (Airport, error) {
	ap := Airport{ICAO: icao}
	var lon, lat float64
	err := p.db.QueryRowContext(ctx,
		`SELECT name, lon, lat, elevation, pattern_altitude, atis, clearance, ground, tower, departure
		 FROM airports WHERE icao = ?`, icao,
	).Scan(&ap.Name, &lon, &lat, &ap.Elevation, &ap.PatternAltitude, &ap.ATIS,
		&ap.Frequencies.Clearance, &ap.Frequencies.Ground, &ap.Frequencies.Tower, &ap.Frequencies.Departure)
	if errors.Is(err, sql.ErrNoRows) {
		return Airport{}, fmt.Errorf("%s: %w", icao, ErrUnknownAirport)
	} else if err != nil {
		return Airport{}, fmt.Errorf("%s: %w", icao, err)
	}
	ap.Location = math.Point2LL{float32(lon), float32(lat)}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, heading, lon, lat, traffic FROM runways WHERE icao = ? ORDER BY seq`, icao)
	if err != nil {
		return Airport{}, fmt.Errorf("%s runways: %w", icao, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rwy Runway
		if err := rows.Scan(&rwy.ID, &rwy.Heading, &lon, &lat, &rwy.Traffic); err != nil {
			return Airport{}, fmt.Errorf("%s runways: %w", icao, err)
		}
		rwy.Threshold = math.Point2LL{float32(lon), float32(lat)}
		ap.Runways = append(ap.Runways, rwy)
	}
	if err := rows.Err(); err != nil {
		return Airport{}, fmt.Errorf("%s runways: %w", icao, err)
	}

	trows, err := p.db.QueryContext(ctx,
		`SELECT from_loc, runway, taxiways, hold_short FROM taxi_routes WHERE icao = ? ORDER BY seq`, icao)
	if err != nil {
		return Airport{}, fmt.Errorf("%s taxi routes: %w", icao, err)
	}
	defer trows.Close()
	for trows.Next() {
		var tr TaxiRoute
		var twys string
		if err := trows.Scan(&tr.From, &tr.Runway, &twys, &tr.HoldShort); err != nil {
			return Airport{}, fmt.Errorf("%s taxi routes: %w", icao, err)
		}
		tr.Taxiways = strings.Fields(twys)
		ap.TaxiRoutes = append(ap.TaxiRoutes, tr)
	}
	return ap, trows.Err()
}

func (p *SQLiteProvider) Airports() []string {
	rows, err := p.db.Query(`SELECT icao FROM airports ORDER BY icao`)
	if err != nil {
		p.lg.Warn("listing airports", slog.Any("error", err))
		return nil
	}
	defer rows.Close()

	var icaos []string
	for rows.Next() {
		var icao string
		if err := rows.Scan(&icao); err != nil {
			p.lg.Warn("listing airports", slog.Any("error", err))
			return nil
		}
		icaos = append(icaos, icao)
	}
	return icaos
}

// WriteSQLite creates the reference database at path with every airport
// that p provides. It is how YAML reference data is compiled for
// OpenSQLiteProvider.
func WriteSQLite(ctx context.Context, path string, p Provider) error {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(DELETE)")
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s schema: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, icao := range p.Airports() {
		ap, err := p.Airport(icao)
		if err != nil {
			return err
		}
		if err := insertAirport(ctx, tx, ap); err != nil {
			return fmt.Errorf("%s: %w", icao, err)
		}
	}
	return tx.Commit()
}

func insertAirport(ctx context.Context, tx *sql.Tx, ap Airport) error {
	f := ap.Frequencies
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO airports (icao, name, lon, lat, elevation, pattern_altitude, atis, clearance, ground, tower, departure)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ICAO, ap.Name, ap.Location.Longitude(), ap.Location.Latitude(), ap.Elevation, ap.PatternAltitude,
		ap.ATIS, int(f.Clearance), int(f.Ground), int(f.Tower), int(f.Departure),
	); err != nil {
		return err
	}

	for i, rwy := range ap.Runways {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runways (icao, seq, id, heading, lon, lat, traffic) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ap.ICAO, i, rwy.ID, rwy.Heading, rwy.Threshold.Longitude(), rwy.Threshold.Latitude(), rwy.Traffic,
		); err != nil {
			return err
		}
	}
	for i, tr := range ap.TaxiRoutes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxi_routes (icao, seq, from_loc, runway, taxiways, hold_short) VALUES (?, ?, ?, ?, ?, ?)`,
			ap.ICAO, i, tr.From, tr.Runway, strings.Join(tr.Taxiways, " "), tr.HoldShort,
		); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Provider = (*SQLiteProvider)(nil)
	_ Provider = (*MemoryProvider)(nil)
)
