package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"bot-ofertas/internal/channel"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

const (
	// CaptionLimit é o tamanho máximo da legenda de uma foto
	CaptionLimit = 1024
	// MessageLimit é o tamanho máximo de uma mensagem de texto
	MessageLimit = 4096
)

// Sender é a parte da API do Telegram usada para enviar mensagens
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Init inicializa o bot do Telegram
func Init(token string, log logger.Logger) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN não configurado. Verifique o arquivo .env")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("token do Telegram inválido ou expirado. Verifique o TELEGRAM_BOT_TOKEN no arquivo .env. Para obter um token, fale com @BotFather no Telegram")
		}
		return nil, fmt.Errorf("erro ao conectar com Telegram: %w", err)
	}

	bot.Debug = false
	log.Info("Bot autorizado", logger.String("usuario", bot.Self.UserName))
	return bot, nil
}

// Notifier publica ofertas no chat configurado
type Notifier struct {
	api     Sender
	chatID  int64
	limiter *rate.Limiter
	log     logger.Logger
}

// NewNotifier cria o canal do Telegram; sem API ou chat o canal fica desabilitado
func NewNotifier(api Sender, chatID int64, log logger.Logger) channel.Channel {
	if api == nil || chatID == 0 {
		return channel.Disabled("telegram")
	}
	return &Notifier{
		api:    api,
		chatID: chatID,
		// grupos aceitam cerca de 20 mensagens por minuto
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 3),
		log:     log.With(logger.String("canal", "telegram")),
	}
}

func (n *Notifier) Name() string { return "telegram" }

// Send envia a foto do produto com a oferta na legenda. Sem imagem, ou se a foto
// for recusada, envia só o texto; se o HTML for recusado, envia sem formatação.
func (n *Notifier) Send(ctx context.Context, message string, p models.Product) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("limite de envio: %w", err)
	}

	if p.ImageURL != nil && *p.ImageURL != "" {
		photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileURL(*p.ImageURL))
		photo.Caption = formatHTML(message, CaptionLimit)
		photo.ParseMode = tgbotapi.ModeHTML
		_, err := n.api.Send(photo)
		if err == nil {
			n.log.Info("oferta enviada", logger.String("asin", p.ASIN))
			return nil
		}
		n.log.Warn("erro ao enviar foto, enviando só o texto", logger.String("asin", p.ASIN), logger.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, formatHTML(message, MessageLimit))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.api.Send(msg); err != nil {
		n.log.Warn("erro ao enviar com HTML, tentando sem formatação", logger.Error(err))
		msg.Text = channel.Truncate(message, MessageLimit)
		msg.ParseMode = ""
		if _, err := n.api.Send(msg); err != nil {
			return fmt.Errorf("erro ao enviar mensagem: %w", err)
		}
	}

	n.log.Info("oferta enviada", logger.String("asin", p.ASIN))
	return nil
}

// formatHTML corta a mensagem no limite, escapa o texto e destaca a primeira linha
func formatHTML(message string, limit int) string {
	lines := strings.Split(channel.Truncate(message, limit), "\n")
	for i, line := range lines {
		lines[i] = escapeHTML(line)
	}
	if lines[0] != "" {
		lines[0] = "<b>" + lines[0] + "</b>"
	}
	return strings.Join(lines, "\n")
}

// escapeHTML escapa caracteres especiais do HTML
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
