package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"bot-ofertas/internal/logger"
)

// RegionBaseURLs mapeia cada região para a loja correspondente
var RegionBaseURLs = map[string]string{
	"US": "https://www.amazon.com",
	"UK": "https://www.amazon.co.uk",
	"CA": "https://www.amazon.ca",
	"DE": "https://www.amazon.de",
	"FR": "https://www.amazon.fr",
	"ES": "https://www.amazon.es",
	"IT": "https://www.amazon.it",
	"JP": "https://www.amazon.co.jp",
	"BR": "https://www.amazon.com.br",
}

// BestsellerCategories são as categorias de mais vendidos visitadas em cada região
var BestsellerCategories = []string{"electronics", "home-garden", "sports-outdoors", "toys-games"}

// Page é uma página de listagem a ser visitada
type Page struct {
	Kind     PageKind
	Region   string
	BaseURL  string
	URL      string
	Category string
}

// Options controla o coletor HTTP
type Options struct {
	UserAgent   string
	Delay       time.Duration
	Parallelism int
	Timeout     time.Duration
	// BaseURL substitui a loja da região (usado nos testes)
	BaseURL string
	Layouts map[PageKind]Selectors
}

// AmazonSource busca ofertas relâmpago, mais vendidos e a busca de ofertas de uma região
type AmazonSource struct {
	region  string
	baseURL string
	opts    Options
	log     logger.Logger
}

// NewAmazonSource cria uma fonte para a região informada (regiões desconhecidas usam a loja US)
func NewAmazonSource(region string, opts Options, log logger.Logger) *AmazonSource {
	region = strings.ToUpper(region)
	base := opts.BaseURL
	if base == "" {
		var ok bool
		if base, ok = RegionBaseURLs[region]; !ok {
			base = RegionBaseURLs["US"]
		}
	}
	if opts.Layouts == nil {
		opts.Layouts = DefaultLayouts
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &AmazonSource{
		region:  region,
		baseURL: strings.TrimRight(base, "/"),
		opts:    opts,
		log:     log.With(logger.String("fonte", "amazon-"+strings.ToLower(region))),
	}
}

func (a *AmazonSource) Name() string {
	return "amazon-" + strings.ToLower(a.region)
}

// Pages lista as páginas visitadas em cada passada
func (a *AmazonSource) Pages() []Page {
	pages := []Page{{
		Kind:     KindLightning,
		URL:      a.baseURL + "/gp/goldbox",
		Category: "deals",
	}}
	for _, category := range BestsellerCategories {
		pages = append(pages, Page{
			Kind:     KindBestseller,
			URL:      a.baseURL + "/gp/bestsellers/" + category,
			Category: category,
		})
	}
	pages = append(pages, Page{
		Kind:     KindSearch,
		URL:      a.baseURL + "/s?k=deals&ref=sr_pg_1",
		Category: "search",
	})
	for i := range pages {
		pages[i].Region = a.region
		pages[i].BaseURL = a.baseURL
	}
	return pages
}

// Fetch visita as páginas em sequência. Uma página com erro não interrompe as outras;
// só retorna erro quando nenhuma página pôde ser lida.
func (a *AmazonSource) Fetch(ctx context.Context) ([]Fragment, error) {
	c := colly.NewCollector(
		colly.UserAgent(a.opts.UserAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(a.opts.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       a.opts.Delay,
		Parallelism: a.opts.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("erro ao configurar limite de requisições: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9,pt-BR;q=0.8")
	})

	var fragments []Fragment
	c.OnHTML("html", func(e *colly.HTMLElement) {
		page, ok := e.Request.Ctx.GetAny("page").(Page)
		if !ok {
			return
		}
		found := ParseListing(e.DOM, page, a.opts.Layouts[page.Kind])
		a.log.Debug("página lida",
			logger.String("url", page.URL),
			logger.String("tipo", string(page.Kind)),
			logger.Int("fragmentos", len(found)),
		)
		fragments = append(fragments, found...)
	})

	pages := a.Pages()
	failed := 0
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		reqCtx := colly.NewContext()
		reqCtx.Put("page", page)
		if err := c.Request(http.MethodGet, page.URL, nil, reqCtx, nil); err != nil {
			failed++
			a.log.Warn("erro ao buscar página",
				logger.String("url", page.URL),
				logger.Error(err),
			)
		}
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return fragments, err
	}
	if failed == len(pages) {
		return nil, errors.New("nenhuma página pôde ser lida")
	}
	return fragments, nil
}
