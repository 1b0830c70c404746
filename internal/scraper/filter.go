package scraper

import "bot-ofertas/internal/models"

// Passes diz se o candidato atende a todos os limites configurados.
// Nota e número de avaliações ausentes não reprovam o candidato.
func Passes(c models.Candidate, t models.Thresholds) bool {
	if c.Discount < t.MinDiscount {
		return false
	}
	if c.Rating != nil && *c.Rating < t.MinRating {
		return false
	}
	if c.ReviewCount != nil && *c.ReviewCount < t.MinReviews {
		return false
	}
	if t.MaxPrice > 0 && c.CurrentPrice > t.MaxPrice {
		return false
	}
	return true
}
