package uploads

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/megaerp/catalog-image-sync/internal/catalog"
)

type removedEntry struct {
	sku     string
	entryID int64
}

type fakeCatalog struct {
	lookups    []*catalog.Product
	lookupErr  error
	lookupCode string
	removed    []removedEntry
	removeErr  error
	uploads    []catalog.UploadInput
	uploadErr  error
}

func (f *fakeCatalog) GetProductByCode(_ context.Context, code string) (*catalog.Product, error) {
	f.lookupCode = code
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if len(f.lookups) == 0 {
		return &catalog.Product{}, nil
	}
	product := f.lookups[0]
	if len(f.lookups) > 1 {
		f.lookups = f.lookups[1:]
	}
	return product, nil
}

func (f *fakeCatalog) RemoveImage(_ context.Context, sku string, entryID int64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, removedEntry{sku: sku, entryID: entryID})
	return nil
}

func (f *fakeCatalog) UploadImage(_ context.Context, in catalog.UploadInput) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, in)
	return nil
}

type fakeStore struct {
	data []byte
	err  error
	key  string
}

func (f *fakeStore) Object(_ context.Context, key string, _ bool) ([]byte, error) {
	f.key = key
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type requeueCall struct {
	objectKey string
	attempts  int
	extra     map[string]any
}

type fakeRequeuer struct {
	retries     []requeueCall
	deadLetters []requeueCall
}

func (f *fakeRequeuer) Retry(_ context.Context, objectKey string, attempts int) error {
	f.retries = append(f.retries, requeueCall{objectKey: objectKey, attempts: attempts})
	return nil
}

func (f *fakeRequeuer) DeadLetter(_ context.Context, objectKey string, attempts int, extra map[string]any) error {
	f.deadLetters = append(f.deadLetters, requeueCall{objectKey: objectKey, attempts: attempts, extra: extra})
	return nil
}

func newTestConsumer(cat *fakeCatalog, store *fakeStore, queue *fakeRequeuer) *Consumer {
	return &Consumer{
		catalog:     cat,
		store:       store,
		queue:       queue,
		logg:        newTestLogger(),
		maxAttempts: 5,
	}
}

func workMessage(t *testing.T, objectKey string, attempts int) *pubsub.Message {
	t.Helper()
	data, err := Envelope{ObjectKey: objectKey, Attempts: attempts}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return &pubsub.Message{Data: data}
}

func productWith(sku, name string, entries ...catalog.MediaEntry) *catalog.Product {
	return &catalog.Product{
		Items: []catalog.Item{{Name: name, SKU: sku, MediaGalleryEntries: entries}},
	}
}

func encodedImage() []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}))
}

func TestConsumerUploadsPrincipalImage(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{
		productWith("SKU-1", "Dipirona 500mg"),
		productWith("SKU-1", "Dipirona 500mg", catalog.MediaEntry{ID: 9, Position: 0, Types: []string{"image", "small_image", "thumbnail"}}),
	}}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_0.jpg", 0))
	if !result.ack || result.nack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	if cat.lookupCode != "ABC123" {
		t.Fatalf("looked up code %q, want %q", cat.lookupCode, "ABC123")
	}
	if len(cat.uploads) != 1 {
		t.Fatalf("uploaded %d images, want 1", len(cat.uploads))
	}
	upload := cat.uploads[0]
	if upload.SKU != "SKU-1" || upload.Position != 0 {
		t.Fatalf("upload = %+v, want SKU-1 at position 0", upload)
	}
	if upload.Image != string(store.data) {
		t.Fatalf("upload image does not match fetched object")
	}
	if store.key != "incoming/ABC123_0.jpg" {
		t.Fatalf("fetched object %q, want full key", store.key)
	}
	if len(cat.removed) != 0 {
		t.Fatalf("removed %d entries, want 0", len(cat.removed))
	}
	if len(queue.retries) != 0 || len(queue.deadLetters) != 0 {
		t.Fatalf("retries = %d, dead letters = %d, want none", len(queue.retries), len(queue.deadLetters))
	}
}

func TestConsumerReconcilesOccupiedPosition(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{
		productWith("SKU-1", "Dipirona 500mg", catalog.MediaEntry{ID: 42, Position: 2}),
	}}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_2.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	if len(cat.removed) != 1 || cat.removed[0].entryID != 42 {
		t.Fatalf("removed = %+v, want entry 42", cat.removed)
	}
	if len(cat.uploads) != 1 || cat.uploads[0].Position != 2 {
		t.Fatalf("uploads = %+v, want one upload at position 2", cat.uploads)
	}
	if len(queue.retries) != 0 {
		t.Fatalf("retries = %d, want 0", len(queue.retries))
	}
}

func TestConsumerRetriesWhenRemoveFails(t *testing.T) {
	cat := &fakeCatalog{
		lookups:   []*catalog.Product{productWith("SKU-1", "Dipirona 500mg", catalog.MediaEntry{ID: 42, Position: 2})},
		removeErr: errors.New("upstream timeout"),
	}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_2.jpg", 1))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack with retry", result)
	}
	if len(cat.uploads) != 0 {
		t.Fatalf("uploaded %d images after remove failure, want 0", len(cat.uploads))
	}
	if len(queue.retries) != 1 {
		t.Fatalf("retries = %d, want 1", len(queue.retries))
	}
	if queue.retries[0].attempts != 1 {
		t.Fatalf("retry attempts = %d, want the current count 1", queue.retries[0].attempts)
	}
	if len(queue.deadLetters) != 0 {
		t.Fatalf("dead letters = %d, want 0", len(queue.deadLetters))
	}
}

func TestConsumerDeadLettersExhaustedBudget(t *testing.T) {
	cat := &fakeCatalog{}
	store := &fakeStore{}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_0.jpg", 5))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	if len(queue.deadLetters) != 1 {
		t.Fatalf("dead letters = %d, want exactly 1", len(queue.deadLetters))
	}
	dl := queue.deadLetters[0]
	if dl.objectKey != "incoming/ABC123_0.jpg" || dl.attempts != 5 {
		t.Fatalf("dead letter = %+v, want exhausted key at attempts 5", dl)
	}
	if dl.extra["reason"] != "Max attempts reached" {
		t.Fatalf("extra[reason] = %v, want %q", dl.extra["reason"], "Max attempts reached")
	}
	if len(queue.retries) != 0 {
		t.Fatalf("retries = %d, want 0", len(queue.retries))
	}
	if cat.lookupCode != "" {
		t.Fatalf("catalog lookup happened for an exhausted message")
	}
}

func TestConsumerRetriesMalformedKey(t *testing.T) {
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(&fakeCatalog{}, &fakeStore{}, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/no-position.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack with retry", result)
	}
	if len(queue.retries) != 1 {
		t.Fatalf("retries = %d, want 1", len(queue.retries))
	}
}

func TestConsumerRetriesMissingProduct(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{{}}}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, &fakeStore{data: encodedImage()}, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_0.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack with retry", result)
	}
	if len(queue.retries) != 1 {
		t.Fatalf("retries = %d, want 1", len(queue.retries))
	}
	if len(cat.uploads) != 0 {
		t.Fatalf("uploaded %d images without a product, want 0", len(cat.uploads))
	}
}

func TestConsumerNacksUndecodableMessage(t *testing.T) {
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(&fakeCatalog{}, &fakeStore{}, queue)

	result := consumer.process(context.Background(), &pubsub.Message{Data: []byte("not json")})
	if !result.nack {
		t.Fatalf("process() = %+v, want nack", result)
	}
	if len(queue.retries) != 0 || len(queue.deadLetters) != 0 {
		t.Fatalf("requeued an undecodable message")
	}
}

func TestConsumerRepairsUnderTaggedPrincipal(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{
		productWith("SKU-1", "Dipirona 500mg"),
		// Refetch after upload shows the principal slot missing its
		// small_image and thumbnail roles.
		productWith("SKU-1", "Dipirona 500mg", catalog.MediaEntry{ID: 7, Position: 0, Types: []string{"image"}}),
	}}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_0.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	if len(cat.removed) != 1 || cat.removed[0].entryID != 7 {
		t.Fatalf("removed = %+v, want under-tagged entry 7", cat.removed)
	}
	if len(cat.uploads) != 2 {
		t.Fatalf("uploads = %d, want initial upload plus repair", len(cat.uploads))
	}
	if cat.uploads[1].Position != 0 {
		t.Fatalf("repair upload position = %d, want 0", cat.uploads[1].Position)
	}
	if len(queue.retries) != 0 {
		t.Fatalf("retries = %d, want 0", len(queue.retries))
	}
}

func TestConsumerSkipsRepairForHealthyPrincipal(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{
		productWith("SKU-1", "Dipirona 500mg"),
		productWith("SKU-1", "Dipirona 500mg", catalog.MediaEntry{ID: 7, Position: 0, Types: []string{"image", "small_image"}}),
	}}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_0.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	if len(cat.removed) != 0 {
		t.Fatalf("removed = %+v, want no removals for a healthy principal", cat.removed)
	}
	if len(cat.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(cat.uploads))
	}
}

func TestConsumerSkipsRepairForSecondaryPositions(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{
		productWith("SKU-1", "Dipirona 500mg"),
	}}
	store := &fakeStore{data: encodedImage()}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_3.jpg", 0))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack", result)
	}
	// A single lookup: secondary positions never trigger the refetch.
	if len(cat.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(cat.uploads))
	}
}

func TestConsumerRetriesWhenObjectFetchFails(t *testing.T) {
	cat := &fakeCatalog{lookups: []*catalog.Product{productWith("SKU-1", "Dipirona 500mg")}}
	store := &fakeStore{err: errors.New("object unavailable")}
	queue := &fakeRequeuer{}
	consumer := newTestConsumer(cat, store, queue)

	result := consumer.process(context.Background(), workMessage(t, "incoming/ABC123_1.jpg", 2))
	if !result.ack {
		t.Fatalf("process() = %+v, want ack with retry", result)
	}
	if len(queue.retries) != 1 || queue.retries[0].attempts != 2 {
		t.Fatalf("retries = %+v, want one retry at current count 2", queue.retries)
	}
}
