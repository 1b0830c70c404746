package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"bot-ofertas/internal/logger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	// ErrConflict indica que o banco estava ocupado ou houve falha de serialização; a operação pode ser repetida
	ErrConflict = errors.New("conflito de escrita no banco de dados")
	// ErrAlreadyPosted indica que outro processo já registrou a distribuição do produto
	ErrAlreadyPosted = errors.New("produto já foi distribuído")
	// ErrNotFound indica que o registro não existe
	ErrNotFound = errors.New("registro não encontrado")
)

// DB encapsula a conexão com o banco de dados
type DB struct {
	conn   *sqlx.DB
	driver string
	log    logger.Logger
	now    func() time.Time
}

// New abre o banco (sqlite3 ou postgres) e cria as tabelas necessárias
func New(driver, dsn string, log logger.Logger) (*DB, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir banco de dados: %w", err)
	}
	if driver == DriverSQLite {
		// um único escritor evita SQLITE_BUSY entre conexões do mesmo processo
		conn.SetMaxOpenConns(1)
	}

	db := newDB(conn, log)
	if err := db.init(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("Banco de dados inicializado com sucesso", logger.String("driver", driver))
	return db, nil
}

func newDB(conn *sqlx.DB, log logger.Logger) *DB {
	return &DB{
		conn:   conn,
		driver: conn.DriverName(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close fecha a conexão com o banco de dados
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifica se o banco responde
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// init cria as tabelas necessárias
func (db *DB) init(ctx context.Context) error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("erro ao criar tabelas: %w", err)
	}
	return nil
}

// classify converte erros de concorrência dos drivers em ErrConflict
func classify(err error) error {
	if err == nil {
		return nil
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asin TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	current_price REAL NOT NULL,
	original_price REAL,
	discount_percentage REAL NOT NULL DEFAULT 0,
	rating REAL,
	review_count INTEGER,
	region TEXT NOT NULL,
	category TEXT,
	image_url TEXT,
	product_url TEXT NOT NULL,
	affiliate_url TEXT,
	is_lightning_deal BOOLEAN NOT NULL DEFAULT 0,
	is_trending BOOLEAN NOT NULL DEFAULT 0,
	is_posted BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	scraped_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_pending ON products (is_posted, discount_percentage);

CREATE TABLE IF NOT EXISTS deals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id),
	asin TEXT NOT NULL,
	title TEXT NOT NULL,
	deal_type TEXT NOT NULL,
	discount_percentage REAL NOT NULL,
	old_price REAL NOT NULL,
	new_price REAL NOT NULL,
	link TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deals_created ON deals (created_at);

CREATE TABLE IF NOT EXISTS deal_channels (
	deal_id INTEGER NOT NULL REFERENCES deals(id),
	channel TEXT NOT NULL,
	delivered BOOLEAN NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (deal_id, channel)
);

CREATE TABLE IF NOT EXISTS digests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sent_at DATETIME NOT NULL,
	deals INTEGER NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	asin TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	current_price DOUBLE PRECISION NOT NULL,
	original_price DOUBLE PRECISION,
	discount_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION,
	review_count INTEGER,
	region TEXT NOT NULL,
	category TEXT,
	image_url TEXT,
	product_url TEXT NOT NULL,
	affiliate_url TEXT,
	is_lightning_deal BOOLEAN NOT NULL DEFAULT FALSE,
	is_trending BOOLEAN NOT NULL DEFAULT FALSE,
	is_posted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_pending ON products (is_posted, discount_percentage);

CREATE TABLE IF NOT EXISTS deals (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	asin TEXT NOT NULL,
	title TEXT NOT NULL,
	deal_type TEXT NOT NULL,
	discount_percentage DOUBLE PRECISION NOT NULL,
	old_price DOUBLE PRECISION NOT NULL,
	new_price DOUBLE PRECISION NOT NULL,
	link TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deals_created ON deals (created_at);

CREATE TABLE IF NOT EXISTS deal_channels (
	deal_id BIGINT NOT NULL REFERENCES deals(id),
	channel TEXT NOT NULL,
	delivered BOOLEAN NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (deal_id, channel)
);

CREATE TABLE IF NOT EXISTS digests (
	id BIGSERIAL PRIMARY KEY,
	sent_at TIMESTAMPTZ NOT NULL,
	deals INTEGER NOT NULL
);
`
