package models

import "time"

// DealType classifica a oferta no momento da distribuição
type DealType string

const (
	DealTypeDiscount DealType = "discount"
	DealTypeTrending DealType = "trending"
)

// Deal é uma linha imutável do histórico de distribuições
type Deal struct {
	ID        int64            `db:"id" json:"id"`
	ProductID int64            `db:"product_id" json:"product_id"`
	ASIN      string           `db:"asin" json:"asin"`
	Title     string           `db:"title" json:"title"`
	DealType  DealType         `db:"deal_type" json:"deal_type"`
	Discount  float64          `db:"discount_percentage" json:"discount_percentage"`
	OldPrice  float64          `db:"old_price" json:"old_price"`
	NewPrice  float64          `db:"new_price" json:"new_price"`
	Link      string           `db:"link" json:"link"`
	Channels  []ChannelOutcome `db:"-" json:"channels"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// ChannelOutcome registra o resultado do envio para um canal
type ChannelOutcome struct {
	DealID    int64  `db:"deal_id" json:"-"`
	Channel   string `db:"channel" json:"channel"`
	Delivered bool   `db:"delivered" json:"delivered"`
	Reason    string `db:"reason" json:"reason,omitempty"`
}

// DealTypeFor deriva o tipo da oferta a partir do desconto
func DealTypeFor(p Product) DealType {
	if p.Discount > 0 {
		return DealTypeDiscount
	}
	return DealTypeTrending
}

// Delivered diz se o canal informado recebeu a oferta
func (d Deal) Delivered(channel string) bool {
	for _, c := range d.Channels {
		if c.Channel == channel {
			return c.Delivered
		}
	}
	return false
}
