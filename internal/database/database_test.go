package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDB(t *testing.T) (*DB, *clock) {
	t.Helper()
	db, err := New(DriverSQLite, filepath.Join(t.TempDir(), "ofertas.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	db.now = c.Now
	return db, c
}

func ptr[T any](v T) *T { return &v }

func candidate(asin string, discount float64) models.Candidate {
	return models.Candidate{
		ASIN:          asin,
		Title:         "Produto " + asin,
		CurrentPrice:  29.99,
		OriginalPrice: ptr(49.99),
		Discount:      discount,
		Rating:        ptr(4.5),
		ReviewCount:   ptr(120),
		Region:        "US",
		Category:      ptr("electronics"),
		ProductURL:    "https://www.amazon.com/dp/" + asin + "?ref=xyz",
	}
}

var thresholds = models.Thresholds{MinDiscount: 20, MinRating: 4, MinReviews: 50, MaxPrice: 500}

func TestUpsertIsIdempotent(t *testing.T) {
	db, c := newTestDB(t)
	ctx := context.Background()

	first, err := db.Upsert(ctx, candidate("B08N5WRWNW", 40))
	require.NoError(t, err)
	assert.True(t, first.Inserted)
	assert.False(t, first.Posted)
	assert.Equal(t, "B08N5WRWNW", first.ASIN)

	c.Advance(time.Minute)
	updated := candidate("B08N5WRWNW", 45)
	updated.CurrentPrice = 27.49
	updated.Rating = nil
	second, err := db.Upsert(ctx, updated)
	require.NoError(t, err)
	assert.False(t, second.Inserted)
	assert.Equal(t, first.ID, second.ID)

	var total int
	require.NoError(t, db.conn.Get(&total, "SELECT COUNT(*) FROM products"))
	assert.Equal(t, 1, total)

	p, err := db.GetProductByASIN(ctx, "B08N5WRWNW")
	require.NoError(t, err)
	assert.Equal(t, 27.49, p.CurrentPrice)
	assert.Equal(t, 45.0, p.Discount)
	assert.Nil(t, p.Rating)
	assert.False(t, p.Posted)
	assert.True(t, p.CreatedAt.Before(p.UpdatedAt))
}

func TestUpsertLeavesPostedUntouched(t *testing.T) {
	db, c := newTestDB(t)
	ctx := context.Background()

	_, err := db.Upsert(ctx, candidate("B08N5WRWNW", 40))
	require.NoError(t, err)
	pending, err := db.SelectPending(ctx, thresholds, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = db.RecordOutcome(ctx, pending[0], []models.ChannelOutcome{{Channel: "telegram", Delivered: true}})
	require.NoError(t, err)

	c.Advance(time.Minute)
	ref, err := db.Upsert(ctx, candidate("B08N5WRWNW", 60))
	require.NoError(t, err)
	assert.True(t, ref.Posted)
	assert.False(t, ref.Inserted)

	pending, err = db.SelectPending(ctx, thresholds, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConcurrentUpsertSameASIN(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ofertas.db")

	// dois processos apontando para o mesmo arquivo, com um relógio que nunca repete
	var tick atomic.Int64
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	handles := make([]*DB, 2)
	for i := range handles {
		db, err := New(DriverSQLite, path, logger.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		db.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Microsecond) }
		handles[i] = db
	}

	const writers = 200
	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		ids      sync.Map
	)
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(db *DB) {
			defer wg.Done()
			ref, err := db.Upsert(ctx, candidate("B08N5WRWNW", 40))
			if err != nil {
				errs <- err
				return
			}
			if ref.Inserted {
				inserted.Add(1)
			}
			ids.Store(ref.ID, struct{}{})
		}(handles[i%len(handles)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, inserted.Load())

	distinct := 0
	ids.Range(func(any, any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)

	var total int
	require.NoError(t, handles[0].conn.Get(&total, "SELECT COUNT(*) FROM products"))
	assert.Equal(t, 1, total)
}

func TestSelectPendingOrderAndFilters(t *testing.T) {
	db, c := newTestDB(t)
	ctx := context.Background()

	stale := candidate("STALE00001", 90)
	_, err := db.Upsert(ctx, stale)
	require.NoError(t, err)
	c.Advance(2 * time.Hour)

	lowDiscount := candidate("LOWDISC001", 10)
	lowRating := candidate("LOWRATE001", 70)
	lowRating.Rating = ptr(3.5)
	fewReviews := candidate("FEWREVS001", 70)
	fewReviews.ReviewCount = ptr(3)
	expensive := candidate("EXPENSIVE1", 70)
	expensive.CurrentPrice = 999
	noRating := candidate("NORATING01", 30)
	noRating.Rating = nil
	noRating.ReviewCount = nil

	for _, cand := range []models.Candidate{lowDiscount, lowRating, fewReviews, expensive, noRating} {
		_, err := db.Upsert(ctx, cand)
		require.NoError(t, err)
	}

	_, err = db.Upsert(ctx, candidate("OLDER50001", 50))
	require.NoError(t, err)
	c.Advance(time.Minute)
	_, err = db.Upsert(ctx, candidate("NEWER50001", 50))
	require.NoError(t, err)
	c.Advance(time.Minute)

	pending, err := db.SelectPending(ctx, thresholds, time.Hour, 10)
	require.NoError(t, err)

	var asins []string
	for _, p := range pending {
		asins = append(asins, p.ASIN)
	}
	assert.Equal(t, []string{"NEWER50001", "OLDER50001", "NORATING01"}, asins)

	limited, err := db.SelectPending(ctx, thresholds, time.Hour, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "NEWER50001", limited[0].ASIN)

	n, err := db.CountPending(ctx, thresholds, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	noCap := thresholds
	noCap.MaxPrice = 0
	n, err = db.CountPending(ctx, noCap, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRecordOutcome(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	_, err := db.Upsert(ctx, candidate("B08N5WRWNW", 40))
	require.NoError(t, err)
	pending, err := db.SelectPending(ctx, thresholds, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	p := pending[0]
	link := "https://www.amazon.com/dp/B08N5WRWNW?tag=ofertas"
	p.AffiliateURL = &link

	outcomes := []models.ChannelOutcome{
		{Channel: "discord", Delivered: false, Reason: "webhook retornou 500"},
		{Channel: "telegram", Delivered: true},
	}
	deal, err := db.RecordOutcome(ctx, p, outcomes)
	require.NoError(t, err)
	assert.NotZero(t, deal.ID)
	assert.Equal(t, models.DealTypeDiscount, deal.DealType)
	assert.Equal(t, 49.99, deal.OldPrice)
	assert.Equal(t, 29.99, deal.NewPrice)
	assert.Equal(t, link, deal.Link)

	_, err = db.RecordOutcome(ctx, p, outcomes)
	assert.ErrorIs(t, err, ErrAlreadyPosted)

	deals, err := db.ListDeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Len(t, deals[0].Channels, 2)
	assert.False(t, deals[0].Delivered("discord"))
	assert.Equal(t, "webhook retornou 500", deals[0].Channels[0].Reason)
	assert.True(t, deals[0].Delivered("telegram"))

	stored, err := db.GetProductByASIN(ctx, "B08N5WRWNW")
	require.NoError(t, err)
	assert.True(t, stored.Posted)
	require.NotNil(t, stored.AffiliateURL)
	assert.Equal(t, link, *stored.AffiliateURL)
}

func TestListDealsEmpty(t *testing.T) {
	db, _ := newTestDB(t)
	deals, err := db.ListDeals(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestGetProductByASINNotFound(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.GetProductByASIN(context.Background(), "B000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newDB(sqlx.NewDb(conn, DriverSQLite), logger.NewNop()), mock
}

func TestUpsertBusyIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO products").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	_, err := db.Upsert(context.Background(), candidate("B08N5WRWNW", 40))
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeSerializationFailureIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET is_posted").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	_, err := db.RecordOutcome(context.Background(), models.Product{ID: 1, ASIN: "B08N5WRWNW"}, nil)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeRollsBackWhenAlreadyPosted(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET is_posted").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := db.RecordOutcome(context.Background(), models.Product{ID: 1, ASIN: "B08N5WRWNW"}, nil)
	assert.ErrorIs(t, err, ErrAlreadyPosted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeRollsBackOnChannelInsertFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET is_posted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO deals").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO deal_channels").
		WillReturnError(errors.New("disco cheio"))
	mock.ExpectRollback()

	outcomes := []models.ChannelOutcome{{Channel: "telegram", Delivered: true}}
	_, err := db.RecordOutcome(context.Background(), models.Product{ID: 1, ASIN: "B08N5WRWNW", CurrentPrice: 10}, outcomes)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrLocked}), ErrConflict)
	assert.ErrorIs(t, classify(&pq.Error{Code: "40P01"}), ErrConflict)

	other := errors.New("outro")
	assert.Equal(t, other, classify(other))
}

func TestDigestDeals(t *testing.T) {
	db, c := newTestDB(t)
	ctx := context.Background()

	post := func(asin string, discount float64, email bool) {
		t.Helper()
		_, err := db.Upsert(ctx, candidate(asin, discount))
		require.NoError(t, err)
		p, err := db.GetProductByASIN(ctx, asin)
		require.NoError(t, err)
		outcome := models.ChannelOutcome{Channel: "email", Delivered: true}
		if !email {
			outcome = models.ChannelOutcome{Channel: "email", Reason: "canal não configurado"}
		}
		_, err = db.RecordOutcome(ctx, *p, []models.ChannelOutcome{{Channel: "telegram", Delivered: true}, outcome})
		require.NoError(t, err)
	}

	post("OLDDEAL001", 90, true)
	c.Advance(time.Hour)
	since := c.Now()
	c.Advance(time.Minute)
	post("EMAIL00030", 30, true)
	post("EMAIL00060", 60, true)
	post("NOEMAIL001", 80, false)
	post("EMAIL00045", 45, true)
	until := c.Now()
	c.Advance(time.Minute)
	post("LATER00099", 99, true)

	deals, err := db.DigestDeals(ctx, since, until, 10)
	require.NoError(t, err)
	var asins []string
	for _, p := range deals {
		asins = append(asins, p.ASIN)
	}
	assert.Equal(t, []string{"EMAIL00060", "EMAIL00045", "EMAIL00030"}, asins)
	require.NotNil(t, deals[0].AffiliateURL)

	top, err := db.DigestDeals(ctx, since, until, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "EMAIL00060", top[0].ASIN)
}

func TestLastDigest(t *testing.T) {
	db, c := newTestDB(t)
	ctx := context.Background()

	last, err := db.LastDigest(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	first := c.Now()
	require.NoError(t, db.RecordDigest(ctx, first, 3))
	second := first.Add(24 * time.Hour)
	require.NoError(t, db.RecordDigest(ctx, second, 5))

	last, err = db.LastDigest(ctx)
	require.NoError(t, err)
	assert.True(t, second.Equal(last), "último resumo: %s", last)
}
