package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

// RecordOutcome marca o produto como distribuído e grava a oferta com o resultado
// de cada canal, tudo na mesma transação. Se o produto já estava marcado,
// nada é gravado e ErrAlreadyPosted é retornado.
func (db *DB) RecordOutcome(ctx context.Context, p models.Product, outcomes []models.ChannelOutcome) (models.Deal, error) {
	now := db.now()
	link := p.Link()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return models.Deal{}, fmt.Errorf("erro ao iniciar transação: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
	UPDATE products SET is_posted = ?, affiliate_url = ?, updated_at = ?
	WHERE id = ? AND is_posted = ?`),
		true, link, now, p.ID, false,
	)
	if err != nil {
		return models.Deal{}, fmt.Errorf("erro ao marcar produto %s: %w", p.ASIN, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Deal{}, fmt.Errorf("erro ao marcar produto %s: %w", p.ASIN, err)
	}
	if n == 0 {
		return models.Deal{}, fmt.Errorf("%w: %s", ErrAlreadyPosted, p.ASIN)
	}

	deal := models.Deal{
		ProductID: p.ID,
		ASIN:      p.ASIN,
		Title:     p.Title,
		DealType:  models.DealTypeFor(p),
		Discount:  p.Discount,
		OldPrice:  p.OldPrice(),
		NewPrice:  p.CurrentPrice,
		Link:      link,
		CreatedAt: now,
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
	INSERT INTO deals (product_id, asin, title, deal_type, discount_percentage, old_price, new_price, link, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`),
		deal.ProductID, deal.ASIN, deal.Title, string(deal.DealType), deal.Discount,
		deal.OldPrice, deal.NewPrice, deal.Link, deal.CreatedAt,
	).Scan(&deal.ID)
	if err != nil {
		return models.Deal{}, fmt.Errorf("erro ao gravar oferta %s: %w", p.ASIN, classify(err))
	}

	insertChannel := tx.Rebind(`INSERT INTO deal_channels (deal_id, channel, delivered, reason) VALUES (?, ?, ?, ?)`)
	for _, o := range outcomes {
		o.DealID = deal.ID
		if _, err := tx.ExecContext(ctx, insertChannel, o.DealID, o.Channel, o.Delivered, o.Reason); err != nil {
			return models.Deal{}, fmt.Errorf("erro ao gravar canal %s da oferta %s: %w", o.Channel, p.ASIN, classify(err))
		}
		deal.Channels = append(deal.Channels, o)
	}

	if err := tx.Commit(); err != nil {
		return models.Deal{}, fmt.Errorf("erro ao confirmar transação: %w", classify(err))
	}

	db.log.Debug("oferta registrada",
		logger.String("asin", p.ASIN),
		logger.Int64("deal_id", deal.ID),
		logger.Int("canais", len(outcomes)),
	)
	return deal, nil
}

// ListDeals retorna as ofertas mais recentes com o resultado de cada canal
func (db *DB) ListDeals(ctx context.Context, limit int) ([]models.Deal, error) {
	var deals []models.Deal
	err := db.conn.SelectContext(ctx, &deals, db.conn.Rebind(`
	SELECT id, product_id, asin, title, deal_type, discount_percentage, old_price, new_price, link, created_at
	FROM deals ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("erro ao listar ofertas: %w", classify(err))
	}
	if len(deals) == 0 {
		return deals, nil
	}

	ids := make([]int64, len(deals))
	byID := make(map[int64]int, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
		byID[d.ID] = i
	}

	query, args, err := sqlx.In(`SELECT deal_id, channel, delivered, reason FROM deal_channels
	WHERE deal_id IN (?) ORDER BY deal_id, channel`, ids)
	if err != nil {
		return nil, fmt.Errorf("erro ao montar consulta de canais: %w", err)
	}

	var outcomes []models.ChannelOutcome
	if err := db.conn.SelectContext(ctx, &outcomes, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("erro ao listar canais das ofertas: %w", classify(err))
	}
	for _, o := range outcomes {
		i := byID[o.DealID]
		deals[i].Channels = append(deals[i].Channels, o)
	}
	return deals, nil
}
