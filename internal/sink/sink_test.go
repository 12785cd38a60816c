package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
	pubmemory "github.com/JakeFAU/tululu-archiver/internal/publisher/memory"
	"github.com/JakeFAU/tululu-archiver/internal/storage/memory"
	"github.com/JakeFAU/tululu-archiver/internal/storage/postgres"
)

func strPtr(s string) *string { return &s }

// mockBlobStore is a testify mock of crawler.BlobStore.
type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

func sampleRecords() []crawler.BookRecord {
	return []crawler.BookRecord{
		{
			Title:     "Война и мир",
			Author:    "Толстой",
			ImagePath: strPtr("images/9.jpg"),
			TextPath:  strPtr("books/9. Война и мир.txt"),
			Comments:  []string{"<b>Отлично</b> & кратко"},
			Genres:    []string{"Роман"},
		},
		{Title: "Без файлов", Author: "Автор", Comments: []string{}, Genres: []string{}},
	}
}

func TestEncodeRecordsKeepsTextLiteral(t *testing.T) {
	t.Parallel()

	data, err := EncodeRecords(sampleRecords())
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"title":"Война и мир"`)
	assert.Contains(t, s, `"<b>Отлично</b> & кратко"`)
	assert.Contains(t, s, `"img_src":null`)
	assert.Contains(t, s, `"book_path":null`)
	assert.NotContains(t, s, `\u`)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	for _, key := range []string{"title", "author", "img_src", "book_path", "comments", "genres"} {
		assert.Contains(t, decoded[0], key)
	}
	assert.Len(t, decoded[0], 6)
}

func TestEncodeRecordsEmptyAndNilSlices(t *testing.T) {
	t.Parallel()

	data, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = EncodeRecords([]crawler.BookRecord{{Title: "t"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"comments":[]`)
	assert.Contains(t, string(data), `"genres":[]`)
}

func TestJSONSinkWritesMetadataFile(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	core, logs := observer.New(zap.InfoLevel)
	s, err := NewJSONSink(store, "", zap.New(core))
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), sampleRecords()))

	data, ok := store.Get(DefaultJSONFile)
	require.True(t, ok)
	var decoded []crawler.BookRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sampleRecords(), decoded)

	entries := logs.FilterMessage("metadata written").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "memory://books_info.json", entries[0].ContextMap()["path"])
}

func TestJSONSinkStorageFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := &mockBlobStore{}
	store.On("PutObject", mock.Anything, "meta/books.json", "application/json; charset=utf-8",
		mock.MatchedBy(func(r io.Reader) bool { return r != nil })).
		Return("", errors.New("disk full"))

	s, err := NewJSONSink(store, "meta/books.json", nil)
	require.NoError(t, err)

	err = s.Persist(context.Background(), nil)
	require.ErrorIs(t, err, crawler.ErrStorage)
	require.ErrorContains(t, err, "disk full")
	store.AssertExpectations(t)
}

func TestNewJSONSinkRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewJSONSink(nil, "", nil)
	require.Error(t, err)
}

func TestPostgresSinkStoresRows(t *testing.T) {
	t.Parallel()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	store, err := postgres.NewBookStoreWithPool(pool, "books")
	require.NoError(t, err)
	runID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectExec("INSERT INTO books").
		WithArgs(runID.String(), 0, "Без файлов", "Автор", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	s, err := NewPostgresSink(store, runID)
	require.NoError(t, err)
	require.NoError(t, s.Persist(context.Background(), sampleRecords()[1:]))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPublisherSinkPublishesInOrder(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	runID := uuid.New()
	s, err := NewPublisherSink(pub, runID, nil)
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), sampleRecords()))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	first, ok := msgs[0].Payload.(BookMessage)
	require.True(t, ok)
	assert.Equal(t, runID.String(), msgs[0].Key)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, "Война и мир", first.Title)

	var wire map[string]any
	require.NoError(t, msgs[0].Decode(&wire))
	assert.Equal(t, runID.String(), wire["run_id"])
	assert.Equal(t, "Война и мир", wire["title"])
	assert.Zero(t, wire["position"])
}

func TestPublisherSinkStopsOnError(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailWith(errors.New("topic not found"))
	s, err := NewPublisherSink(pub, uuid.New(), nil)
	require.NoError(t, err)

	require.ErrorContains(t, s.Persist(context.Background(), sampleRecords()), "topic not found")
}

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) Persist(context.Context, []crawler.BookRecord) error {
	c.calls++
	return c.err
}

func TestMultiRunsEverySink(t *testing.T) {
	t.Parallel()

	failing := &countingSink{err: errors.New("first failed")}
	ok := &countingSink{}
	err := Multi{failing, ok}.Persist(context.Background(), sampleRecords())

	require.ErrorContains(t, err, "first failed")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
	require.NoError(t, Multi{ok}.Persist(context.Background(), nil))
}
