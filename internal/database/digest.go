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

// DigestDeals retorna os produtos das ofertas registradas para o canal de e-mail
// em (since, until], do maior desconto para o menor
func (db *DB) DigestDeals(ctx context.Context, since, until time.Time, limit int) ([]models.Product, error) {
	query := db.conn.Rebind(`SELECT ` + prefixed(productColumns, "p.") + `
	FROM deals d
	JOIN deal_channels c ON c.deal_id = d.id
	JOIN products p ON p.id = d.product_id
	WHERE c.channel = ? AND c.delivered = ? AND d.created_at > ? AND d.created_at <= ?
	ORDER BY p.discount_percentage DESC, d.created_at DESC, d.id DESC
	LIMIT ?`)

	var products []models.Product
	err := db.conn.SelectContext(ctx, &products, query, "email", true, since.UTC(), until.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar ofertas do resumo: %w", classify(err))
	}
	return products, nil
}

// LastDigest retorna o fim da janela do último resumo enviado, ou o tempo zero se nenhum foi enviado
func (db *DB) LastDigest(ctx context.Context) (time.Time, error) {
	var sentAt time.Time
	err := db.conn.GetContext(ctx, &sentAt, `SELECT sent_at FROM digests ORDER BY sent_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("erro ao buscar último resumo: %w", classify(err))
	}
	return sentAt, nil
}

// RecordDigest registra um resumo entregue ao servidor SMTP
func (db *DB) RecordDigest(ctx context.Context, sentAt time.Time, deals int) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(`INSERT INTO digests (sent_at, deals) VALUES (?, ?)`), sentAt.UTC(), deals)
	if err != nil {
		return fmt.Errorf("erro ao registrar resumo: %w", classify(err))
	}
	return nil
}

func prefixed(columns, alias string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		f = strings.TrimSpace(f)
		fields[i] = alias + f + " AS " + f
	}
	return strings.Join(fields, ", ")
}
