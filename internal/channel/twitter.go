package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

// TweetLimit é o tamanho máximo de um tweet
const TweetLimit = 280

// Twitter publica ofertas pela API v2 usando um token OAuth2 de usuário
type Twitter struct {
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// NewTwitter cria o canal do Twitter/X; sem token o canal fica desabilitado
func NewTwitter(accessToken, apiURL string, log logger.Logger) Channel {
	if accessToken == "" {
		return Disabled("twitter")
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = 15 * time.Second

	return &Twitter{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: client,
		// plano básico permite 100 tweets a cada 24h por usuário
		limiter: rate.NewLimiter(rate.Every(15*time.Minute), 4),
		log:     log.With(logger.String("canal", "twitter")),
	}
}

func (t *Twitter) Name() string { return "twitter" }

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (t *Twitter) Send(ctx context.Context, _ string, p models.Product) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("limite de envio: %w", err)
	}

	body, err := json.Marshal(tweetRequest{Text: FormatTweet(p)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("erro ao publicar tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API do Twitter retornou %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("erro ao ler resposta do Twitter: %w", err)
	}
	t.log.Info("tweet publicado", logger.String("asin", p.ASIN), logger.String("tweet_id", out.Data.ID))
	return nil
}

// FormatTweet monta o tweet da oferta; o título é encurtado para caber em TweetLimit
func FormatTweet(p models.Product) string {
	emoji := "💰"
	if p.Discount > 30 {
		emoji = "🔥"
	}

	var details strings.Builder
	if p.Discount > 0 {
		fmt.Fprintf(&details, "🏷️ %.0f%% OFF\n", p.Discount)
	}
	fmt.Fprintf(&details, "💸 %s\n", Price(p.Region, p.CurrentPrice))
	if p.Rating != nil {
		fmt.Fprintf(&details, "%s %.1f/5\n", Stars(*p.Rating), *p.Rating)
	}
	tail := fmt.Sprintf("\n#OfertasAmazon #Ofertas %s\n%s", Hashtag(p.Category), p.Link())

	head := emoji + " "
	room := TweetLimit - utf8.RuneCountInString(head) - 1 - utf8.RuneCountInString(details.String()) - utf8.RuneCountInString(tail)
	if room < 4 {
		// sem espaço nem para o título: fica só o essencial
		return Truncate(head+details.String()+strings.TrimPrefix(tail, "\n"), TweetLimit)
	}
	return head + Truncate(p.Title, room) + "\n" + details.String() + tail
}
