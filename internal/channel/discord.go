package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

const (
	colorHot  = 0x00ff00
	colorWarm = 0xff9900
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Thumbnail   *discordImage  `json:"thumbnail,omitempty"`
	Fields      []discordField `json:"fields"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Discord publica ofertas em um canal do Discord via webhook
type Discord struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
	log        logger.Logger
}

// NewDiscord cria o canal do Discord; sem URL de webhook o canal fica desabilitado
func NewDiscord(webhookURL string, log logger.Logger) Channel {
	if webhookURL == "" {
		return Disabled("discord")
	}
	return &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		// webhooks aceitam cerca de 30 mensagens por minuto
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		log:     log.With(logger.String("canal", "discord")),
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, message string, p models.Product) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("limite de envio: %w", err)
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{buildEmbed(message, p)}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("erro ao chamar webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook retornou %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	d.log.Info("oferta enviada", logger.String("asin", p.ASIN))
	return nil
}

func buildEmbed(message string, p models.Product) discordEmbed {
	e := discordEmbed{
		Title:       Truncate(p.Title, 256),
		Description: Truncate(message, 4096),
		URL:         p.Link(),
		Color:       colorWarm,
	}
	if p.Discount > 30 {
		e.Color = colorHot
	}
	if p.ImageURL != nil && *p.ImageURL != "" {
		e.Thumbnail = &discordImage{URL: *p.ImageURL}
	}

	e.Fields = append(e.Fields, discordField{Name: "Preço", Value: Price(p.Region, p.CurrentPrice), Inline: true})
	if p.Discount > 0 {
		e.Fields = append(e.Fields, discordField{Name: "Desconto", Value: fmt.Sprintf("%.0f%%", p.Discount), Inline: true})
	}
	if p.Rating != nil {
		e.Fields = append(e.Fields, discordField{Name: "Avaliação", Value: fmt.Sprintf("⭐ %.1f/5", *p.Rating), Inline: true})
	}
	e.Fields = append(e.Fields, discordField{Name: "Comprar", Value: fmt.Sprintf("[Link da Amazon](%s)", p.Link())})
	return e
}
