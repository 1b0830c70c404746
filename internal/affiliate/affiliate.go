// Package affiliate monta links de afiliado e encurta links via bit.ly.
package affiliate

import (
	"net/url"
	"strings"
)

// DefaultRegion é usada quando a região do produto não tem tag
const DefaultRegion = "US"

// Parâmetros fixos de rastreamento do programa de associados
const (
	LinkCode = "as2"
	Camp     = "1789"
	Creative = "9325"
)

var regionSuffix = map[string]string{
	"US": "",
	"UK": "-21",
	"DE": "-21",
	"FR": "-21",
	"ES": "-21",
	"IT": "-21",
	"CA": "-20",
	"BR": "-20",
	"JP": "-22",
}

var commissionRates = map[string]float64{
	"electronics":     0.02,
	"toys-games":      0.03,
	"sports-outdoors": 0.03,
	"home-garden":     0.04,
	"beauty":          0.04,
	"books":           0.04,
	"fashion":         0.05,
	"jewelry":         0.06,
	"luxury":          0.10,
}

// Builder reescreve URLs de produto para links de afiliado
type Builder struct {
	tags map[string]string
}

// NewBuilder deriva a tag de cada região a partir do ID de associado.
// overrides substitui a tag derivada para as regiões informadas.
func NewBuilder(associateID string, overrides map[string]string) *Builder {
	tags := make(map[string]string, len(regionSuffix))
	if associateID != "" {
		for region, suffix := range regionSuffix {
			tags[region] = associateID + suffix
		}
	}
	for region, tag := range overrides {
		tags[strings.ToUpper(region)] = tag
	}
	return &Builder{tags: tags}
}

// Tag retorna a tag da região, ou a da região padrão quando ela não está mapeada
func (b *Builder) Tag(region string) string {
	if tag, ok := b.tags[strings.ToUpper(region)]; ok {
		return tag
	}
	return b.tags[DefaultRegion]
}

// Rewrite adiciona a tag e os parâmetros de rastreamento mantendo o resto da URL.
// Se a URL não puder ser interpretada, ela é devolvida sem alteração.
func (b *Builder) Rewrite(rawURL, region string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return rawURL
	}

	if tag := b.Tag(region); tag != "" {
		q.Set("tag", tag)
	}
	q.Set("linkCode", LinkCode)
	q.Set("camp", Camp)
	q.Set("creative", Creative)

	u.RawQuery = q.Encode()
	return u.String()
}

// CommissionRate estima a comissão da categoria (2% quando desconhecida)
func CommissionRate(category string) float64 {
	if rate, ok := commissionRates[strings.ToLower(category)]; ok {
		return rate
	}
	return 0.02
}
