package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors descreve onde cada campo fica dentro de um contêiner de produto.
// Cada seletor pode ser uma lista separada por vírgula; vale o primeiro elemento encontrado.
type Selectors struct {
	Container     string
	Title         string
	Link          string
	Price         string
	OriginalPrice string
	Discount      string
	Rating        string
	Reviews       string
	Image         string
	// Limit corta a quantidade de contêineres lidos por página (0 = sem limite)
	Limit int
}

// DefaultLayouts é a tabela padrão de seletores por tipo de página
var DefaultLayouts = map[PageKind]Selectors{
	KindLightning: {
		Container:     "div[data-testid*='grid-deals-container']",
		Title:         "span[data-testid='deal-title'], [class*='DealContent'] span",
		Link:          "a[href]",
		Price:         "span.a-price:not(.a-text-price) .a-offscreen, span[class*='a-price-whole']",
		OriginalPrice: "span.a-text-price .a-offscreen",
		Discount:      "span[class*='a-label-discount'], [class*='BadgeAccent']",
		Rating:        "span.a-icon-alt",
		Reviews:       "span.a-size-small.a-color-secondary",
		Image:         "img",
	},
	KindBestseller: {
		Container:     "div[data-component-type='item'], div#gridItemRoot",
		Title:         "span[class*='a-size-mini'], div[class*='p13n-sc-truncate']",
		Link:          "a[href]",
		Price:         "span.a-price .a-offscreen, span.a-price-whole, span[class*='p13n-sc-price']",
		OriginalPrice: "span.a-text-price .a-offscreen",
		Discount:      "span[class*='a-label-discount']",
		Rating:        "span.a-icon-alt",
		Reviews:       "span.a-size-small",
		Image:         "img",
		Limit:         20,
	},
	KindSearch: {
		Container:     "div[data-component-type='s-search-result']",
		Title:         "h2 span, h2 a span",
		Link:          "h2 a[href], a.a-link-normal[href]",
		Price:         "span.a-price:not(.a-text-price) .a-offscreen, span.a-price-whole",
		OriginalPrice: "span.a-price.a-text-price .a-offscreen",
		Discount:      "span[class*='a-label-discount'], span.savingsPercentage",
		Rating:        "span.a-icon-alt",
		Reviews:       "span.a-size-base.s-underline-text",
		Image:         "img.s-image",
	},
}

// ParseListing lê todos os contêineres de uma página de listagem e devolve os fragmentos brutos
func ParseListing(root *goquery.Selection, page Page, sel Selectors) []Fragment {
	var fragments []Fragment
	root.Find(sel.Container).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if sel.Limit > 0 && i >= sel.Limit {
			return false
		}
		fragments = append(fragments, Fragment{
			Kind:          page.Kind,
			Region:        page.Region,
			BaseURL:       page.BaseURL,
			Title:         text(s, sel.Title),
			Href:          attr(s, sel.Link, "href"),
			Price:         text(s, sel.Price),
			OriginalPrice: text(s, sel.OriginalPrice),
			Discount:      text(s, sel.Discount),
			Rating:        text(s, sel.Rating),
			Reviews:       text(s, sel.Reviews),
			Image:         attr(s, sel.Image, "src"),
			Category:      page.Category,
		})
		return true
	})
	return fragments
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().AttrOr(name, ""))
}
