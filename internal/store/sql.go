package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/currentweather-service/internal/models"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

type sqlQueries struct {
	findFresh string
	insert    string
}

var queriesByDialect = map[Dialect]sqlQueries{
	DialectSQLite: {
		findFresh: `SELECT id, city, timestamp_ms, temperature, humidity, description
			FROM current_weather WHERE city = ? AND timestamp_ms >= ? LIMIT 1`,
		insert: `INSERT INTO current_weather (id, city, timestamp_ms, temperature, humidity, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
	},
	DialectPostgres: {
		findFresh: `SELECT id, city, timestamp_ms, temperature, humidity, description
			FROM current_weather WHERE city = $1 AND timestamp_ms >= $2 LIMIT 1`,
		insert: `INSERT INTO current_weather (id, city, timestamp_ms, temperature, humidity, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
	},
}

// SQLStore stores records in the current_weather table.
type SQLStore struct {
	db      *sql.DB
	queries sqlQueries
}

// OpenSQL connects to dsn, applies the embedded migrations and returns a ready store.
// For sqlite, dsn is a file DSN such as "file:currentweather.db?cache=shared&mode=rwc" or ":memory:".
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if _, ok := queriesByDialect[dialect]; !ok {
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := Migrate(ctx, db, dialect, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect)
}

// NewSQLStore wraps an already migrated database.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	q, ok := queriesByDialect[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	return &SQLStore{db: db, queries: q}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	gooseDialect := string(dialect)
	if dialect == DialectSQLite {
		gooseDialect = "sqlite3"
	}
	goose.SetBaseFS(migrations)
	if logger != nil {
		goose.SetLogger(gooseLogger{logger.Sugar()})
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// gooseLogger routes migration output through zap.
type gooseLogger struct {
	l *zap.SugaredLogger
}

func (g gooseLogger) Printf(format string, v ...interface{}) { g.l.Infof(format, v...) }
func (g gooseLogger) Fatalf(format string, v ...interface{}) { g.l.Fatalf(format, v...) }

func (s *SQLStore) FindFresh(ctx context.Context, city string, notOlderThan time.Time) (models.WeatherRecord, error) {
	var (
		rec         models.WeatherRecord
		tsMillis    int64
		humidity    sql.NullFloat64
		description sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.queries.findFresh, city, notOlderThan.UnixMilli()).
		Scan(&rec.ID, &rec.City, &tsMillis, &rec.Temperature, &humidity, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeatherRecord{}, ErrNotFound
	}
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("find fresh weather for %q: %w", city, err)
	}
	rec.Timestamp = fromMillis(tsMillis)
	rec.Humidity = humidity.Float64
	rec.Description = description.String
	return rec, nil
}

func (s *SQLStore) Save(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	rec = prepareInsert(rec)
	_, err := s.db.ExecContext(ctx, s.queries.insert,
		rec.ID, rec.City, rec.Timestamp.UnixMilli(), rec.Temperature, rec.Humidity, rec.Description)
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("insert weather for %q: %w", rec.City, err)
	}
	return rec, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
