package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

const (
	defaultDigestWindow = 24 * time.Hour
	maxDigestBacklog    = 72 * time.Hour
)

// SMTPConfig reúne os dados do servidor de e-mail
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	Recipients []string
}

// DigestStore é a parte do repositório usada para montar o resumo
type DigestStore interface {
	DigestDeals(ctx context.Context, since, until time.Time, limit int) ([]models.Product, error)
	LastDigest(ctx context.Context) (time.Time, error)
	RecordDigest(ctx context.Context, sentAt time.Time, deals int) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Digest envia um resumo diário em HTML por e-mail com as ofertas registradas
// para o canal desde o último resumo entregue
type Digest struct {
	cfg      SMTPConfig
	store    DigestStore
	max      int
	sendMail sendMailFunc
	now      func() time.Time
	log      logger.Logger
}

// NewDigest cria o resumo. Sem servidor SMTP ou destinatários, Send retorna ErrNotConfigured.
func NewDigest(cfg SMTPConfig, store DigestStore, maxDeals int, log logger.Logger) *Digest {
	if maxDeals <= 0 {
		maxDeals = 20
	}
	return &Digest{
		cfg:      cfg,
		store:    store,
		max:      maxDeals,
		sendMail: smtp.SendMail,
		now:      time.Now,
		log:      log.With(logger.String("canal", "email")),
	}
}

func (d *Digest) Name() string { return "email" }

// Configured diz se há servidor e destinatários
func (d *Digest) Configured() bool {
	return d.cfg.Host != "" && len(d.cfg.Recipients) > 0
}

// Send aceita a oferta para o próximo resumo. O resumo é montado a partir do
// histórico gravado pela distribuição, então nada fica guardado em memória.
func (d *Digest) Send(ctx context.Context, _ string, _ models.Product) error {
	if !d.Configured() {
		return ErrNotConfigured
	}
	return ctx.Err()
}

// Flush envia as melhores ofertas registradas desde o último resumo entregue.
// Se o envio falhar, a mesma janela é usada na próxima tentativa.
func (d *Digest) Flush(ctx context.Context) error {
	if !d.Configured() {
		return ErrNotConfigured
	}

	now := d.now()
	since, err := d.store.LastDigest(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		since = now.Add(-defaultDigestWindow)
	}
	if floor := now.Add(-maxDigestBacklog); since.Before(floor) {
		since = floor
	}

	deals, err := d.store.DigestDeals(ctx, since, now, d.max)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		d.log.Debug("nenhuma oferta para o resumo")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("🔥 Melhores ofertas do dia - %s", now.Format("02/01/2006"))
	body, err := renderDigest(subject, deals)
	if err != nil {
		return fmt.Errorf("erro ao montar resumo: %w", err)
	}

	msg := buildMIME(d.cfg.From, d.cfg.Recipients, subject, body)
	var auth smtp.Auth
	if d.cfg.User != "" {
		auth = smtp.PlainAuth("", d.cfg.User, d.cfg.Password, d.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	if err := d.sendMail(addr, auth, d.cfg.From, d.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("erro ao enviar resumo por e-mail: %w", err)
	}

	// o e-mail já saiu; uma falha aqui só faz o próximo resumo repetir ofertas
	if err := d.store.RecordDigest(context.WithoutCancel(ctx), now, len(deals)); err != nil {
		d.log.Warn("erro ao registrar resumo enviado", logger.Error(err))
	}

	d.log.Info("resumo enviado",
		logger.Int("ofertas", len(deals)),
		logger.Int("destinatarios", len(d.cfg.Recipients)),
	)
	return nil
}

func buildMIME(from string, to []string, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return b.Bytes()
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"price":  Price,
	"rating": ratingLine,
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
	<h1 style="color: #ff6b35;">{{.Subject}}</h1>
	<p>As melhores ofertas desde o último resumo, selecionadas para você.</p>
	{{range .Deals}}
	<div style="border: 1px solid #ddd; margin: 10px 0; padding: 15px; border-radius: 5px;">
		{{with .ImageURL}}<img src="{{.}}" alt="" style="max-width: 120px; float: right;">{{end}}
		<h3>{{.Title}}</h3>
		<p>
			<strong style="color: #e74c3c; font-size: 18px;">{{price .Region .CurrentPrice}}</strong>
			{{if gt .OldPrice .CurrentPrice}}<span style="text-decoration: line-through;">{{price .Region .OldPrice}}</span>{{end}}
			{{if gt .Discount 0.0}}<span style="background: #e74c3c; color: white; padding: 2px 6px;">{{printf "%.0f" .Discount}}% OFF</span>{{end}}
		</p>
		{{if .Rating}}<p>{{rating .Rating}}</p>{{end}}
		<a href="{{.Link}}" style="background: #ff9900; color: white; padding: 10px 20px; text-decoration: none;">Ver oferta</a>
		<div style="clear: both;"></div>
	</div>
	{{end}}
	<p style="color: #888; font-size: 12px;">Você recebe este e-mail porque assinou o resumo de ofertas.</p>
</body>
</html>`))

func ratingLine(r *float64) string {
	return fmt.Sprintf("%s %.1f/5", Stars(*r), *r)
}

func renderDigest(subject string, deals []models.Product) (string, error) {
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Subject string
		Deals   []models.Product
	}{subject, deals})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
