package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-ofertas/internal/channel"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

// fakeAPI guarda tudo o que seria enviado ao Telegram
type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	fail    func(c tgbotapi.Chattable) error
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.fail != nil {
		if err := f.fail(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Sent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

func ptr[T any](v T) *T { return &v }

func echoDot() models.Product {
	return models.Product{
		ID:            1,
		ASIN:          "B08N5WRWNW",
		Title:         "Echo Dot <5ª geração> & Alexa",
		CurrentPrice:  29.99,
		OriginalPrice: ptr(49.99),
		Discount:      40,
		Rating:        ptr(4.7),
		Region:        "US",
		ImageURL:      ptr("https://m.media-amazon.com/images/I/echo.jpg"),
		ProductURL:    "https://www.amazon.com/dp/B08N5WRWNW",
	}
}

func TestNewNotifierDisabled(t *testing.T) {
	assert.True(t, channel.IsDisabled(NewNotifier(nil, 123, logger.NewNop())))
	assert.True(t, channel.IsDisabled(NewNotifier(newFakeAPI(), 0, logger.NewNop())))
}

func TestNotifierSendsPhotoWithCaption(t *testing.T) {
	api := newFakeAPI()
	n := NewNotifier(api, -100123, logger.NewNop())
	require.Equal(t, "telegram", n.Name())

	p := echoDot()
	require.NoError(t, n.Send(context.Background(), channel.FormatMessage(p), p))

	sent := api.Sent()
	require.Len(t, sent, 1)
	photo, ok := sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-100123), photo.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, photo.ParseMode)
	assert.True(t, strings.HasPrefix(photo.Caption, "<b>🔥 40% OFF! Echo Dot &lt;5ª geração&gt; &amp; Alexa</b>\n"))
	assert.Equal(t, tgbotapi.FileURL("https://m.media-amazon.com/images/I/echo.jpg"), photo.File)
}

func TestNotifierFallsBackToText(t *testing.T) {
	api := newFakeAPI()
	api.fail = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.PhotoConfig); ok {
			return errors.New("Bad Request: wrong file identifier/HTTP URL specified")
		}
		return nil
	}
	n := NewNotifier(api, 42, logger.NewNop())

	p := echoDot()
	require.NoError(t, n.Send(context.Background(), channel.FormatMessage(p), p))

	sent := api.Sent()
	require.Len(t, sent, 2)
	msg, ok := sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "Compre agora")
}

func TestNotifierWithoutImageRetriesPlainText(t *testing.T) {
	api := newFakeAPI()
	api.fail = func(c tgbotapi.Chattable) error {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ParseMode == tgbotapi.ModeHTML {
			return errors.New("Bad Request: can't parse entities")
		}
		return nil
	}
	n := NewNotifier(api, 42, logger.NewNop())

	p := echoDot()
	p.ImageURL = nil
	message := channel.FormatMessage(p)
	require.NoError(t, n.Send(context.Background(), message, p))

	sent := api.Sent()
	require.Len(t, sent, 2)
	plain := sent[1].(tgbotapi.MessageConfig)
	assert.Empty(t, plain.ParseMode)
	assert.Equal(t, message, plain.Text)
}

func TestNotifierReportsFailure(t *testing.T) {
	api := newFakeAPI()
	api.fail = func(tgbotapi.Chattable) error { return errors.New("Forbidden: bot was kicked") }
	n := NewNotifier(api, 42, logger.NewNop())

	p := echoDot()
	p.ImageURL = nil
	err := n.Send(context.Background(), "mensagem", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kicked")
}

func TestNotifierCanceledContext(t *testing.T) {
	api := newFakeAPI()
	n := NewNotifier(api, 42, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, n.Send(ctx, "mensagem", echoDot()))
	assert.Empty(t, api.Sent())
}

func TestFormatHTMLRespectsLimit(t *testing.T) {
	long := strings.Repeat("a&b ", 600)
	out := formatHTML("título\n"+long, CaptionLimit)

	assert.True(t, strings.HasPrefix(out, "<b>título</b>\n"))
	plain := strings.NewReplacer("<b>", "", "</b>", "", "&amp;", "&").Replace(out)
	assert.LessOrEqual(t, utf8.RuneCountInString(plain), CaptionLimit)
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", escapeHTML("a <b> & c"))
}
