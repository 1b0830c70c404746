package models

// Candidate é um registro extraído de uma página que ainda não foi filtrado nem salvo
type Candidate struct {
	ASIN          string   `validate:"required,len=10,alphanum"`
	Title         string   `validate:"required"`
	CurrentPrice  float64  `validate:"gt=0"`
	OriginalPrice *float64 `validate:"omitempty,gt=0"`
	Discount      float64  `validate:"gte=0,lte=100"`
	Rating        *float64 `validate:"omitempty,gte=0,lte=5"`
	ReviewCount   *int     `validate:"omitempty,gte=0"`
	Region        string   `validate:"required"`
	Category      *string
	ImageURL      *string
	ProductURL    string `validate:"required,url"`
	IsLightning   bool
	IsTrending    bool
}

// Thresholds são os limites configurados que uma oferta precisa atingir.
// MaxPrice igual a zero significa sem limite de preço.
type Thresholds struct {
	MinDiscount float64
	MinRating   float64
	MinReviews  int
	MaxPrice    float64
}
