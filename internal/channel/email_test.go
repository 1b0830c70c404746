package channel

import (
	"context"
	"errors"
	"mime"
	"net/smtp"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-ofertas/internal/database"
	"bot-ofertas/internal/models"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

// memoryStore guarda as ofertas e os resumos enviados em memória
type memoryStore struct {
	mu      sync.Mutex
	deals   []models.Product
	last    time.Time
	windows [][2]time.Time
	err     error
}

func (m *memoryStore) DigestDeals(_ context.Context, since, until time.Time, limit int) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, [2]time.Time{since, until})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.deals) > limit {
		return m.deals[:limit], nil
	}
	return m.deals, nil
}

func (m *memoryStore) LastDigest(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memoryStore) RecordDigest(_ context.Context, sentAt time.Time, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = sentAt
	return nil
}

var digestNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestDigest(t *testing.T, store DigestStore, fail error) (*Digest, *[]sentMail) {
	t.Helper()
	var sent []sentMail
	d := NewDigest(SMTPConfig{
		Host:       "smtp.example.com",
		Port:       587,
		User:       "bot",
		Password:   "segredo",
		From:       "ofertas@example.com",
		Recipients: []string{"a@example.com", "b@example.com"},
	}, store, 5, nopLogger())
	d.now = func() time.Time { return digestNow }
	d.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if fail != nil {
			return fail
		}
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return d, &sent
}

func product(id int64, discount float64) models.Product {
	p := echoDot()
	p.ID = id
	p.Discount = discount
	return p
}

func header(t *testing.T, msg, name string) string {
	t.Helper()
	head, _, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	for _, line := range strings.Split(head, "\r\n") {
		if value, found := strings.CutPrefix(line, name+": "); found {
			return value
		}
	}
	t.Fatalf("cabeçalho %s ausente", name)
	return ""
}

func TestDigestNotConfigured(t *testing.T) {
	d := NewDigest(SMTPConfig{Host: "smtp.example.com"}, &memoryStore{}, 5, nopLogger())
	assert.ErrorIs(t, d.Send(context.Background(), "", echoDot()), ErrNotConfigured)
	assert.ErrorIs(t, d.Flush(context.Background()), ErrNotConfigured)
}

func TestDigestFlush(t *testing.T) {
	store := &memoryStore{deals: []models.Product{product(2, 60), product(1, 30)}}
	d, sent := newTestDigest(t, store, nil)
	ctx := context.Background()

	require.NoError(t, d.Send(ctx, "", product(1, 30)))
	require.NoError(t, d.Flush(ctx))
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, "ofertas@example.com", mail.from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Content-Type: text/html")
	assert.Contains(t, mail.msg, "60% OFF")
	assert.Contains(t, mail.msg, "⭐⭐⭐⭐ 4.7/5")
	assert.Less(t, strings.Index(mail.msg, "60% OFF"), strings.Index(mail.msg, "30% OFF"))

	// primeira janela: últimas 24 horas
	require.Len(t, store.windows, 1)
	assert.Equal(t, digestNow.Add(-24*time.Hour), store.windows[0][0])
	assert.Equal(t, digestNow, store.windows[0][1])
	assert.Equal(t, digestNow, store.last)
}

func TestDigestSubjectIsEncoded(t *testing.T) {
	d, sent := newTestDigest(t, &memoryStore{deals: []models.Product{product(1, 40)}}, nil)
	require.NoError(t, d.Flush(context.Background()))
	require.Len(t, *sent, 1)

	head, _, _ := strings.Cut((*sent)[0].msg, "\r\n\r\n")
	for _, r := range head {
		require.Less(t, r, rune(128), "cabeçalho com caractere fora do ASCII")
	}

	subject, err := new(mime.WordDecoder).DecodeHeader(header(t, (*sent)[0].msg, "Subject"))
	require.NoError(t, err)
	assert.Equal(t, "🔥 Melhores ofertas do dia - 10/03/2026", subject)
}

func TestDigestEmptyWindowSendsNothing(t *testing.T) {
	store := &memoryStore{}
	d, sent := newTestDigest(t, store, nil)

	require.NoError(t, d.Flush(context.Background()))
	assert.Empty(t, *sent)
	assert.True(t, store.last.IsZero())
}

func TestDigestFlushFailureKeepsWindow(t *testing.T) {
	store := &memoryStore{deals: []models.Product{product(1, 40)}}
	d, _ := newTestDigest(t, store, errors.New("conexão recusada"))
	ctx := context.Background()

	assert.Error(t, d.Flush(ctx))
	assert.True(t, store.last.IsZero())

	// a tentativa seguinte ainda cobre as ofertas que não saíram
	d.now = func() time.Time { return digestNow.Add(time.Hour) }
	d.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	require.NoError(t, d.Flush(ctx))
	require.Len(t, store.windows, 2)
	assert.Equal(t, digestNow.Add(-23*time.Hour), store.windows[1][0])
	assert.Equal(t, digestNow.Add(time.Hour), store.last)
}

func TestDigestWindowStartsAtLastDigest(t *testing.T) {
	store := &memoryStore{last: digestNow.Add(-6 * time.Hour)}
	d, _ := newTestDigest(t, store, nil)
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, digestNow.Add(-6*time.Hour), store.windows[0][0])

	store.last = digestNow.Add(-30 * 24 * time.Hour)
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, digestNow.Add(-72*time.Hour), store.windows[1][0])
}

func TestDigestStoreError(t *testing.T) {
	store := &memoryStore{err: errors.New("banco indisponível")}
	d, sent := newTestDigest(t, store, nil)
	assert.Error(t, d.Flush(context.Background()))
	assert.Empty(t, *sent)
}

// O resumo sai do histórico gravado, então um processo novo (distribute
// --flush-digest ou um reinício do serve) envia o que a passada registrou.
func TestDigestFlushAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ofertas.db")

	db, err := database.New(database.DriverSQLite, path, nopLogger())
	require.NoError(t, err)
	sender, _ := newTestDigest(t, db, nil)
	for _, c := range []models.Candidate{
		{ASIN: "B08N5WRWNW", Title: "Echo Dot (5th Gen)", CurrentPrice: 29.99, OriginalPrice: ptr(49.99), Discount: 40, Region: "US", ProductURL: "https://www.amazon.com/dp/B08N5WRWNW"},
		{ASIN: "B09B8V1LZ3", Title: "Kindle Paperwhite", CurrentPrice: 99.99, OriginalPrice: ptr(159.99), Discount: 37.5, Region: "US", ProductURL: "https://www.amazon.com/dp/B09B8V1LZ3"},
	} {
		ref, err := db.Upsert(ctx, c)
		require.NoError(t, err)
		p := models.Product{ID: ref.ID, ASIN: c.ASIN, Title: c.Title, CurrentPrice: c.CurrentPrice, OriginalPrice: c.OriginalPrice, Discount: c.Discount, Region: c.Region, ProductURL: c.ProductURL}
		outcome := models.ChannelOutcome{Channel: sender.Name(), Delivered: sender.Send(ctx, "", p) == nil}
		_, err = db.RecordOutcome(ctx, p, []models.ChannelOutcome{outcome, {Channel: "discord", Reason: "canal não configurado"}})
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	reopened, err := database.New(database.DriverSQLite, path, nopLogger())
	require.NoError(t, err)
	defer reopened.Close()

	d, sent := newTestDigest(t, reopened, nil)
	d.now = time.Now
	require.NoError(t, d.Flush(ctx))
	require.Len(t, *sent, 1)
	msg := (*sent)[0].msg
	assert.Contains(t, msg, "Echo Dot (5th Gen)")
	assert.Contains(t, msg, "Kindle Paperwhite")
	assert.Less(t, strings.Index(msg, "Echo Dot"), strings.Index(msg, "Kindle"))

	// o mesmo histórico não gera um segundo e-mail
	require.NoError(t, d.Flush(ctx))
	assert.Len(t, *sent, 1)
}
