package scraper

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"bot-ofertas/internal/models"
)

// PageKind identifica o tipo de página de onde o fragmento saiu
type PageKind string

const (
	KindLightning  PageKind = "lightning"
	KindBestseller PageKind = "bestseller"
	KindSearch     PageKind = "search"
)

// Fragment é o texto bruto de um contêiner de produto em uma listagem
type Fragment struct {
	Kind          PageKind
	Region        string
	BaseURL       string
	Title         string
	Href          string
	Price         string
	OriginalPrice string
	Discount      string
	Rating        string
	Reviews       string
	Image         string
	Category      string
}

// ErrSkip indica que o fragmento deve ser descartado sem interromper o lote
var ErrSkip = errors.New("fragmento ignorado")

// SkipError carrega o motivo do descarte
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("fragmento ignorado: %s", e.Reason)
}

func (e *SkipError) Is(target error) bool {
	return target == ErrSkip
}

func skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

var (
	asinPattern       = regexp.MustCompile(`/([A-Z0-9]{10})`)
	discountPattern   = regexp.MustCompile(`(\d+)\s*%`)
	ratingPattern     = regexp.MustCompile(`(\d+[.,]?\d*)`)
	priceTokenPattern = regexp.MustCompile(`\d[\d.,]*`)
	nonDigitPattern   = regexp.MustCompile(`\D`)

	validate = validator.New()
)

// Extract transforma um fragmento em um candidato. Campos obrigatórios
// ausentes (título, ASIN, preço) geram um *SkipError.
func Extract(f Fragment) (models.Candidate, error) {
	title := strings.Join(strings.Fields(f.Title), " ")
	if title == "" {
		return models.Candidate{}, skip("campo ausente: título")
	}

	link, err := resolveLink(f.BaseURL, f.Href)
	if err != nil {
		return models.Candidate{}, skip("campo ausente: link (%v)", err)
	}

	asin := ExtractASIN(link)
	if asin == "" {
		return models.Candidate{}, skip("campo ausente: ASIN")
	}

	price := ParsePrice(f.Price)
	if price <= 0 {
		return models.Candidate{}, skip("campo ausente: preço")
	}

	c := models.Candidate{
		ASIN:         asin,
		Title:        title,
		CurrentPrice: price,
		Region:       strings.ToUpper(f.Region),
		ProductURL:   link,
		IsLightning:  f.Kind == KindLightning,
		IsTrending:   f.Kind == KindBestseller,
	}

	percent := parsePercent(f.Discount)
	if percent >= 100 {
		// selo sem relação com o preço
		percent = 0
	}
	listed := ParsePrice(f.OriginalPrice)

	switch {
	case listed > price:
		c.OriginalPrice = &listed
		c.Discount = math.Round((1 - price/listed) * 100)
	case listed != price && percent > 0:
		original := roundCents(price / (1 - percent/100))
		c.OriginalPrice = &original
		c.Discount = percent
	default:
		original := price
		c.OriginalPrice = &original
	}

	c.Rating = parseRating(f.Rating)
	c.ReviewCount = parseReviews(f.Reviews)

	if f.Category != "" {
		category := f.Category
		c.Category = &category
	}
	if f.Image != "" {
		if img, err := resolveLink(f.BaseURL, f.Image); err == nil {
			c.ImageURL = &img
		}
	}

	if err := validate.Struct(c); err != nil {
		return models.Candidate{}, skip("candidato inválido: %v", err)
	}
	return c, nil
}

// ExtractASIN retorna o identificador de 10 caracteres encontrado no caminho da URL
func ExtractASIN(link string) string {
	m := asinPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ParsePrice converte textos como "$1,299.99", "1.299,99" ou "R$ 1.299".
// Só o primeiro número do texto é lido, então "$12.99 - $24.99" vale 12.99.
// Um separador que aparece uma única vez seguido de um ou dois dígitos é o decimal.
func ParsePrice(text string) float64 {
	token := strings.TrimRight(priceTokenPattern.FindString(text), ".,")
	if token == "" {
		return 0
	}

	intPart, fracPart := token, ""
	if i := strings.LastIndexAny(token, ".,"); i >= 0 {
		digits := len(token) - i - 1
		if digits <= 2 && strings.Count(token, token[i:i+1]) == 1 {
			intPart, fracPart = token[:i], token[i+1:]
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)

	number := intPart
	if fracPart != "" {
		number += "." + fracPart
	}
	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0
	}
	return v
}

func resolveLink(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("href vazio")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", fmt.Errorf("base inválida %q", base)
	}
	return b.ResolveReference(ref).String(), nil
}

func parsePercent(text string) float64 {
	m := discountPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func parseRating(text string) *float64 {
	m := ratingPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

func parseReviews(text string) *int {
	digits := nonDigitPattern.ReplaceAllString(text, "")
	if digits == "" {
		return nil
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &v
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
