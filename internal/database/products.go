package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bot-ofertas/internal/models"
)

const productColumns = `id, asin, title, current_price, original_price, discount_percentage, rating, review_count,
	region, category, image_url, product_url, affiliate_url, is_lightning_deal, is_trending, is_posted,
	created_at, updated_at, scraped_at`

// Upsert insere o produto ou atualiza os campos mutáveis de um ASIN já conhecido.
// asin, is_posted e created_at nunca são alterados por um upsert.
func (db *DB) Upsert(ctx context.Context, c models.Candidate) (models.ProductRef, error) {
	now := db.now()
	query := db.conn.Rebind(`
	INSERT INTO products (asin, title, current_price, original_price, discount_percentage, rating, review_count,
		region, category, image_url, product_url, is_lightning_deal, is_trending, is_posted,
		created_at, updated_at, scraped_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (asin) DO UPDATE SET
		title = excluded.title,
		current_price = excluded.current_price,
		original_price = excluded.original_price,
		discount_percentage = excluded.discount_percentage,
		rating = excluded.rating,
		review_count = excluded.review_count,
		region = excluded.region,
		category = excluded.category,
		image_url = excluded.image_url,
		product_url = excluded.product_url,
		is_lightning_deal = excluded.is_lightning_deal,
		is_trending = excluded.is_trending,
		updated_at = excluded.updated_at,
		scraped_at = excluded.scraped_at
	RETURNING id, asin, is_posted, created_at = updated_at`)

	var ref models.ProductRef
	err := db.conn.QueryRowxContext(ctx, query,
		c.ASIN, c.Title, c.CurrentPrice, c.OriginalPrice, c.Discount, c.Rating, c.ReviewCount,
		c.Region, c.Category, c.ImageURL, c.ProductURL, c.IsLightning, c.IsTrending, false,
		now, now, now,
	).Scan(&ref.ID, &ref.ASIN, &ref.Posted, &ref.Inserted)
	if err != nil {
		return models.ProductRef{}, fmt.Errorf("erro ao salvar produto %s: %w", c.ASIN, classify(err))
	}
	return ref, nil
}

// pendingFilter monta o WHERE comum à seleção e à contagem de pendentes
func (db *DB) pendingFilter(t models.Thresholds, window time.Duration) (string, []any) {
	clauses := []string{
		"is_posted = ?",
		"discount_percentage >= ?",
		"(rating IS NULL OR rating >= ?)",
		"(review_count IS NULL OR review_count >= ?)",
		"created_at >= ?",
	}
	args := []any{false, t.MinDiscount, t.MinRating, t.MinReviews, db.now().Add(-window)}
	if t.MaxPrice > 0 {
		clauses = append(clauses, "current_price <= ?")
		args = append(args, t.MaxPrice)
	}
	return strings.Join(clauses, " AND "), args
}

// SelectPending retorna produtos não distribuídos que ainda atendem aos limites e
// foram criados dentro da janela, do maior desconto para o menor (empate: mais recente primeiro)
func (db *DB) SelectPending(ctx context.Context, t models.Thresholds, window time.Duration, limit int) ([]models.Product, error) {
	where, args := db.pendingFilter(t, window)
	query := db.conn.Rebind(`SELECT ` + productColumns + ` FROM products WHERE ` + where +
		` ORDER BY discount_percentage DESC, created_at DESC, id DESC LIMIT ?`)
	args = append(args, limit)

	var products []models.Product
	if err := db.conn.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("erro ao buscar produtos pendentes: %w", classify(err))
	}
	return products, nil
}

// CountPending conta os produtos que seriam elegíveis para a próxima distribuição
func (db *DB) CountPending(ctx context.Context, t models.Thresholds, window time.Duration) (int, error) {
	where, args := db.pendingFilter(t, window)
	var n int
	if err := db.conn.GetContext(ctx, &n, db.conn.Rebind(`SELECT COUNT(*) FROM products WHERE `+where), args...); err != nil {
		return 0, fmt.Errorf("erro ao contar produtos pendentes: %w", classify(err))
	}
	return n, nil
}

// GetProductByASIN retorna um produto pelo ASIN
func (db *DB) GetProductByASIN(ctx context.Context, asin string) (*models.Product, error) {
	var p models.Product
	err := db.conn.GetContext(ctx, &p, db.conn.Rebind(`SELECT `+productColumns+` FROM products WHERE asin = ?`), asin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar produto %s: %w", asin, classify(err))
	}
	return &p, nil
}
