package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bot-ofertas/internal/logger"
)

// Shortener encurta links na API v4 do bit.ly
type Shortener struct {
	token   string
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// NewShortener cria o encurtador. Sem token, Shorten devolve sempre a URL original.
func NewShortener(token, baseURL string, log logger.Logger) *Shortener {
	return &Shortener{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Enabled diz se há token configurado
func (s *Shortener) Enabled() bool {
	return s != nil && s.token != ""
}

type shortenRequest struct {
	LongURL string `json:"long_url"`
	Domain  string `json:"domain"`
}

type shortenResponse struct {
	Link string `json:"link"`
}

// Shorten tenta encurtar a URL; qualquer falha devolve a URL recebida
func (s *Shortener) Shorten(ctx context.Context, longURL string) string {
	if !s.Enabled() {
		return longURL
	}
	short, err := s.shorten(ctx, longURL)
	if err != nil {
		s.log.Warn("erro ao encurtar link", logger.String("url", longURL), logger.Error(err))
		return longURL
	}
	return short
}

func (s *Shortener) shorten(ctx context.Context, longURL string) (string, error) {
	body, err := json.Marshal(shortenRequest{LongURL: longURL, Domain: "bit.ly"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v4/shorten", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status code: %d", resp.StatusCode)
	}

	var out shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("erro ao ler resposta: %w", err)
	}
	if out.Link == "" {
		return "", fmt.Errorf("resposta sem link")
	}
	return out.Link, nil
}
