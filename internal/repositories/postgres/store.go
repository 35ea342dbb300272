// Package postgres stores the catalog and settings in PostgreSQL through sqlx and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

const settingsRowID = "app"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		position INTEGER PRIMARY KEY,
		id       TEXT NOT NULL,
		name     TEXT NOT NULL,
		prices   JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		id                TEXT PRIMARY KEY,
		gemini_api_key    TEXT NOT NULL DEFAULT '',
		deepseek_api_key  TEXT NOT NULL DEFAULT '',
		deepseek_base_url TEXT NOT NULL DEFAULT '',
		cashier_name      TEXT NOT NULL DEFAULT '',
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

type productRow struct {
	Position int    `db:"position"`
	ID       string `db:"id"`
	Name     string `db:"name"`
	Prices   []byte `db:"prices"`
}

type settingsRow struct {
	GeminiAPIKey    string `db:"gemini_api_key"`
	DeepSeekAPIKey  string `db:"deepseek_api_key"`
	DeepSeekBaseURL string `db:"deepseek_base_url"`
	CashierName     string `db:"cashier_name"`
}

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a repositories.Registry backed by PostgreSQL.
type Store struct {
	DB *sqlx.DB
}

var _ repositories.Registry = (*Store)(nil)

// Open connects with the pgx stdlib driver and creates the tables when missing.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	store := &Store{DB: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return classify("postgres.migrate", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close(context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return classify("postgres.ping", err)
	}
	return nil
}

func (s *Store) Products() repositories.ProductRepository { return productRepository{db: s.DB} }

func (s *Store) Settings() repositories.SettingsRepository { return settingsRepository{db: s.DB} }

type productRepository struct {
	db *sqlx.DB
}

func (r productRepository) List(ctx context.Context) ([]domain.Product, error) {
	return listProducts(ctx, r.db, "products.list")
}

func listProducts(ctx context.Context, q sqlx.QueryerContext, op string) ([]domain.Product, error) {
	var rows []productRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT position, id, name, prices FROM products ORDER BY position`); err != nil {
		return nil, classify(op, err)
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		product := domain.Product{ID: row.ID, Name: row.Name}
		if len(row.Prices) > 0 {
			if err := json.Unmarshal(row.Prices, &product.Prices); err != nil {
				return nil, repositories.NewStoreError(op, repositories.StoreErrorCorrupt,
					fmt.Errorf("position %d: %w", row.Position, err))
			}
		}
		products = append(products, product)
	}
	return products, nil
}

// Mutate locks the products table for the duration of the transaction so concurrent
// read-modify-write cycles serialise.
func (r productRepository) Mutate(ctx context.Context, fn repositories.ProductMutation) (result []domain.Product, err error) {
	if fn == nil {
		return nil, errors.New("postgres: mutation is required")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("products.mutate", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `LOCK TABLE products IN EXCLUSIVE MODE`); err != nil {
		return nil, classify("products.mutate", err)
	}
	current, err := listProducts(ctx, tx, "products.mutate")
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return nil, classify("products.mutate", err)
	}
	if len(next) > 0 {
		rows := make([]productRow, 0, len(next))
		for i, product := range next {
			prices, mErr := json.Marshal(product.Prices)
			if mErr != nil {
				err = repositories.NewStoreError("products.mutate", repositories.StoreErrorCorrupt, mErr)
				return nil, err
			}
			rows = append(rows, productRow{Position: i, ID: product.ID, Name: product.Name, Prices: prices})
		}
		if _, err = tx.NamedExecContext(ctx,
			`INSERT INTO products (position, id, name, prices) VALUES (:position, :id, :name, :prices)`, rows); err != nil {
			return nil, classify("products.mutate", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, classify("products.mutate", err)
	}
	return append([]domain.Product{}, next...), nil
}

type settingsRepository struct {
	db *sqlx.DB
}

func (r settingsRepository) Get(ctx context.Context) (domain.AppSettings, error) {
	var row settingsRow
	err := r.db.GetContext(ctx, &row, `SELECT gemini_api_key, deepseek_api_key, deepseek_base_url, cashier_name
		FROM app_settings WHERE id = $1`, settingsRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppSettings{}, repositories.NewStoreError("settings.get", repositories.StoreErrorNotFound, nil)
	}
	if err != nil {
		return domain.AppSettings{}, classify("settings.get", err)
	}
	settings := domain.AppSettings(row)
	if strings.TrimSpace(settings.DeepSeekBaseURL) == "" {
		settings.DeepSeekBaseURL = domain.DefaultDeepSeekBaseURL
	}
	return settings, nil
}

func (r settingsRepository) Save(ctx context.Context, settings domain.AppSettings) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO app_settings
		(id, gemini_api_key, deepseek_api_key, deepseek_base_url, cashier_name, updated_at)
		VALUES (:id, :gemini_api_key, :deepseek_api_key, :deepseek_base_url, :cashier_name, now())
		ON CONFLICT (id) DO UPDATE SET
			gemini_api_key = EXCLUDED.gemini_api_key,
			deepseek_api_key = EXCLUDED.deepseek_api_key,
			deepseek_base_url = EXCLUDED.deepseek_base_url,
			cashier_name = EXCLUDED.cashier_name,
			updated_at = now()`,
		map[string]any{
			"id":                settingsRowID,
			"gemini_api_key":    settings.GeminiAPIKey,
			"deepseek_api_key":  settings.DeepSeekAPIKey,
			"deepseek_base_url": settings.DeepSeekBaseURL,
			"cashier_name":      settings.CashierName,
		})
	if err != nil {
		return classify("settings.save", err)
	}
	return nil
}

// classify maps driver errors to store error codes. Context errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "23505":
			return repositories.NewStoreError(op, repositories.StoreErrorConflict, err)
		case strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P"):
			return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
		case strings.HasPrefix(pgErr.Code, "22"):
			return repositories.NewStoreError(op, repositories.StoreErrorCorrupt, err)
		}
		return repositories.NewStoreError(op, repositories.StoreErrorUnknown, err)
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, err)
}
