package channel

import (
	"fmt"
	"regexp"
	"strings"

	"bot-ofertas/internal/models"
)

var currencySymbols = map[string]string{
	"US": "$",
	"CA": "C$",
	"UK": "£",
	"DE": "€",
	"FR": "€",
	"ES": "€",
	"IT": "€",
	"JP": "¥",
	"BR": "R$",
}

var hashtagCleaner = regexp.MustCompile(`[^\p{L}\p{N}]`)

// Price formata o valor com o símbolo da moeda da região
func Price(region string, v float64) string {
	symbol, ok := currencySymbols[strings.ToUpper(region)]
	if !ok {
		symbol = "$"
	}
	return fmt.Sprintf("%s%.2f", symbol, v)
}

// Stars desenha uma estrela por ponto inteiro da nota
func Stars(rating float64) string {
	return strings.Repeat("⭐", int(rating))
}

// Hashtag converte a categoria em hashtag ("home-garden" vira "#homegarden")
func Hashtag(category *string) string {
	tag := "compras"
	if category != nil && *category != "" {
		tag = hashtagCleaner.ReplaceAllString(strings.ToLower(*category), "")
	}
	return "#" + tag
}

// FormatMessage monta o texto da oferta usado por todos os canais
func FormatMessage(p models.Product) string {
	var b strings.Builder
	if p.Discount > 0 {
		fmt.Fprintf(&b, "🔥 %.0f%% OFF! ", p.Discount)
	}
	b.WriteString(p.Title)
	b.WriteString("\n\n💰 ")
	b.WriteString(Price(p.Region, p.CurrentPrice))
	if old := p.OldPrice(); old > p.CurrentPrice {
		fmt.Fprintf(&b, " (antes %s)", Price(p.Region, old))
	}
	if p.Rating != nil {
		fmt.Fprintf(&b, "\n%s %.1f/5", Stars(*p.Rating), *p.Rating)
	}
	fmt.Fprintf(&b, "\n\n🛒 Compre agora: %s", p.Link())
	fmt.Fprintf(&b, "\n\n#ofertas #amazon %s", Hashtag(p.Category))
	return b.String()
}

// Truncate corta s em no máximo limit runas, terminando em "..." quando corta
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
