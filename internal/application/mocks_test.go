package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startLoop runs a loop until the test ends.
func startLoop(t *testing.T) *Loop {
	t.Helper()

	loop := NewLoop(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Stopped()
	})
	return loop
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects []output.StorageObject
	content map[string][]byte
	listErr error
	statErr error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]output.StorageObject(nil), m.objects...), nil
}

func (m *mockStorage) Stat(_ context.Context, key string) (output.StorageObject, error) {
	if m.statErr != nil {
		return output.StorageObject{}, m.statErr
	}
	for _, obj := range m.objects {
		if obj.Key == key {
			return obj, nil
		}
	}
	return output.StorageObject{}, domain.ErrObjectNotFound
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.content[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// transferCall records one BeginTransfer call of fakeTransport.
type transferCall struct {
	ref    string
	dest   string
	cb     output.TransferCallbacks
	handle output.TransferHandle
}

// complete writes data to the temp file and reports completion.
func (c *transferCall) complete(t *testing.T, data []byte) {
	t.Helper()
	if err := os.WriteFile(c.dest, data, 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	c.cb.OnComplete(int64(len(data)))
}

// fakeTransport implements output.Transport. Callbacks are driven by the
// test; metadata queries answer synchronously.
type fakeTransport struct {
	transfers []*transferCall
	cancels   []output.TransferHandle
	meta      map[string]domain.RemoteMetadata
	metaErr   error
	queries   int
}

func (f *fakeTransport) QueryRemoteMetadata(ref string, done func(domain.RemoteMetadata, error)) {
	f.queries++
	if f.metaErr != nil {
		done(domain.RemoteMetadata{}, f.metaErr)
		return
	}
	meta, ok := f.meta[ref]
	if !ok {
		done(domain.RemoteMetadata{}, domain.ErrObjectNotFound)
		return
	}
	done(meta, nil)
}

func (f *fakeTransport) BeginTransfer(ref, destTemp string, cb output.TransferCallbacks) output.TransferHandle {
	call := &transferCall{
		ref:    ref,
		dest:   destTemp,
		cb:     cb,
		handle: output.TransferHandle(fmt.Sprintf("t%d", len(f.transfers)+1)),
	}
	f.transfers = append(f.transfers, call)
	return call.handle
}

func (f *fakeTransport) Cancel(h output.TransferHandle) {
	f.cancels = append(f.cancels, h)
}

func (f *fakeTransport) last() *transferCall {
	if len(f.transfers) == 0 {
		return nil
	}
	return f.transfers[len(f.transfers)-1]
}

// memStateStore implements output.StateStore for testing.
type memStateStore struct {
	records map[string]domain.LocalRecord
	putErr  error
}

func newMemStateStore() *memStateStore {
	return &memStateStore{records: make(map[string]domain.LocalRecord)}
}

func (m *memStateStore) Get(_ context.Context, key string) (domain.LocalRecord, bool, error) {
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *memStateStore) Put(_ context.Context, rec domain.LocalRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[rec.Key] = rec
	return nil
}

func (m *memStateStore) Delete(_ context.Context, key string) error {
	delete(m.records, key)
	return nil
}

func (m *memStateStore) Close() error { return nil }

// fakeResource implements domain.Resource with settable facts.
type fakeResource struct {
	key      string
	identity domain.Identity

	destroyed   bool
	description string
	info        string
	downloading bool
	hasFile     bool
	remoteSize  int64
	remoteKnown bool
	updateSize  int64

	starts, stops, updates, deletes int

	notifier domain.Notifier
}

func newFakeResource(key string, category domain.Category) *fakeResource {
	return &fakeResource{
		key:      key,
		identity: domain.Identity{Section: "test", DisplayName: key, Category: category},
	}
}

func (f *fakeResource) Key() string { return f.key }
func (f *fakeResource) Identity() domain.Identity { return f.identity }
func (f *fakeResource) Valid() bool { return !f.destroyed }
func (f *fakeResource) Destroy() { f.destroyed = true }
func (f *fakeResource) Description() string { return f.description }
func (f *fakeResource) InfoText() string { return f.info }
func (f *fakeResource) Downloading() bool { return f.downloading }
func (f *fakeResource) HasFile() bool { return f.hasFile }
func (f *fakeResource) UpdateSize() int64 { return f.updateSize }
func (f *fakeResource) StartDownload() { f.starts++ }
func (f *fakeResource) StopDownload() { f.stops++ }
func (f *fakeResource) Update() { f.updates++ }
func (f *fakeResource) DeleteFiles() { f.deletes++ }
func (f *fakeResource) Subscribe(l domain.Listener) { f.notifier.Subscribe(l) }
func (f *fakeResource) emit(signals ...domain.Signal) { f.notifier.EmitSignals(signals...) }

func (f *fakeResource) RemoteSize() (int64, bool) {
	return f.remoteSize, f.remoteKnown
}

// recorder collects events.
type recorder struct {
	events []domain.Event
}

func (r *recorder) listen(e domain.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) count(s domain.Signal) int {
	n := 0
	for _, e := range r.events {
		if e.Signal == s {
			n++
		}
	}
	return n
}

// waitFor polls cond on the loop until it holds or the timeout expires.
func waitFor(t *testing.T, loop *Loop, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		if err := loop.Do(context.Background(), func() { ok = cond() }); err != nil {
			t.Fatalf("loop.Do: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
