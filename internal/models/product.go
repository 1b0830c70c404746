package models

import "time"

// Product representa um anúncio rastreado, identificado pelo ASIN
type Product struct {
	ID            int64     `db:"id" json:"id"`
	ASIN          string    `db:"asin" json:"asin"`
	Title         string    `db:"title" json:"title"`
	CurrentPrice  float64   `db:"current_price" json:"current_price"`
	OriginalPrice *float64  `db:"original_price" json:"original_price,omitempty"` // Preço antes do desconto
	Discount      float64   `db:"discount_percentage" json:"discount_percentage"` // Percentual de desconto (0-100)
	Rating        *float64  `db:"rating" json:"rating,omitempty"`
	ReviewCount   *int      `db:"review_count" json:"review_count,omitempty"`
	Region        string    `db:"region" json:"region"`
	Category      *string   `db:"category" json:"category,omitempty"`
	ImageURL      *string   `db:"image_url" json:"image_url,omitempty"`
	ProductURL    string    `db:"product_url" json:"product_url"`
	AffiliateURL  *string   `db:"affiliate_url" json:"affiliate_url,omitempty"`
	IsLightning   bool      `db:"is_lightning_deal" json:"is_lightning_deal"`
	IsTrending    bool      `db:"is_trending" json:"is_trending"`
	Posted        bool      `db:"is_posted" json:"is_posted"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	ScrapedAt     time.Time `db:"scraped_at" json:"scraped_at"`
}

// ProductRef é o retorno do upsert: identifica o produto e diz se ele foi criado agora
type ProductRef struct {
	ID       int64  `db:"id"`
	ASIN     string `db:"asin"`
	Posted   bool   `db:"is_posted"`
	Inserted bool   `db:"-"`
}

// Link retorna o link de afiliado quando existir, senão o link canônico
func (p Product) Link() string {
	if p.AffiliateURL != nil && *p.AffiliateURL != "" {
		return *p.AffiliateURL
	}
	return p.ProductURL
}

// OldPrice retorna o preço original, ou o preço atual quando não há preço original
func (p Product) OldPrice() float64 {
	if p.OriginalPrice != nil {
		return *p.OriginalPrice
	}
	return p.CurrentPrice
}
