package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// chanDispatcher hands posted functions to the test goroutine.
type chanDispatcher chan func()

func (d chanDispatcher) Post(fn func()) { d <- fn }

// blockingReader blocks until its context is done.
type blockingReader struct {
	ctx context.Context
}

func (r blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func (r blockingReader) Close() error { return nil }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingReader) Close() error { return nil }

type fakeStorage struct {
	content map[string][]byte
	block   bool
	fail    bool
	noSize  bool
}

func (s *fakeStorage) List(context.Context) ([]output.StorageObject, error) { return nil, nil }

func (s *fakeStorage) Stat(_ context.Context, key string) (output.StorageObject, error) {
	data, ok := s.content[key]
	if !ok {
		return output.StorageObject{}, domain.ErrObjectNotFound
	}
	if s.noSize {
		return output.StorageObject{Key: key, ETag: "e1"}, nil
	}
	return output.StorageObject{Key: key, Size: int64(len(data)), SizeKnown: true, ETag: "e1"}, nil
}

func (s *fakeStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	switch {
	case s.block:
		return blockingReader{ctx: ctx}, nil
	case s.fail:
		return failingReader{}, nil
	}
	data, ok := s.content[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type outcome struct {
	progress  []int64
	completed *int64
	err       error
	cancelled bool
}

// collect records the callbacks of one transfer.
func collect() (*outcome, output.TransferCallbacks) {
	out := &outcome{}
	cb := output.TransferCallbacks{
		OnProgress:  func(n int64) { out.progress = append(out.progress, n) },
		OnComplete:  func(n int64) { out.completed = &n },
		OnError:     func(err error) { out.err = err },
		OnCancelled: func() { out.cancelled = true },
	}
	return out, cb
}

func (o *outcome) finished() bool {
	return o.completed != nil || o.err != nil || o.cancelled
}

func drain(t *testing.T, d chanDispatcher, until func() bool) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for !until() {
		select {
		case fn := <-d:
			fn()
		case <-timeout:
			t.Fatal("timed out waiting for callbacks")
		}
	}
}

func newTestTransport(storage output.ObjectStorage) (*Transport, chanDispatcher) {
	d := make(chanDispatcher, 128)
	return New(storage, d, Options{ProgressInterval: time.Nanosecond}), d
}

func TestBeginTransferCompletes(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 200*1024)
	tr, d := newTestTransport(&fakeStorage{content: map[string][]byte{"a.geojson": payload}})
	defer tr.Close()

	dest := filepath.Join(t.TempDir(), "a.geojson.part")
	out, cb := collect()

	handle := tr.BeginTransfer("a.geojson", dest, cb)
	require.NotEmpty(t, handle)

	drain(t, d, out.finished)

	require.NotNil(t, out.completed)
	assert.Equal(t, int64(len(payload)), *out.completed)
	require.NotEmpty(t, out.progress)
	assert.Equal(t, int64(len(payload)), out.progress[len(out.progress)-1])
	for i := 1; i < len(out.progress); i++ {
		assert.GreaterOrEqual(t, out.progress[i], out.progress[i-1])
	}

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	assert.Eventually(t, func() bool { return tr.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBeginTransferHandlesAreUnique(t *testing.T) {
	tr, _ := newTestTransport(&fakeStorage{block: true})
	defer tr.Close()

	_, cb1 := collect()
	_, cb2 := collect()
	dir := t.TempDir()

	h1 := tr.BeginTransfer("a", filepath.Join(dir, "a.part"), cb1)
	h2 := tr.BeginTransfer("b", filepath.Join(dir, "b.part"), cb2)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, tr.Active())
}

func TestCancel(t *testing.T) {
	tr, d := newTestTransport(&fakeStorage{block: true})
	defer tr.Close()

	out, cb := collect()
	handle := tr.BeginTransfer("a.geojson", filepath.Join(t.TempDir(), "a.part"), cb)

	tr.Cancel(handle)
	tr.Cancel(handle)
	tr.Cancel("unknown")

	drain(t, d, out.finished)
	assert.True(t, out.cancelled)
	assert.Nil(t, out.completed)
	assert.NoError(t, out.err)
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name    string
		storage *fakeStorage
		dest    func(dir string) string
		kind    domain.ErrorKind
	}{
		{
			name:    "missing object",
			storage: &fakeStorage{content: map[string][]byte{}},
			dest:    func(dir string) string { return filepath.Join(dir, "a.part") },
			kind:    domain.NetworkError,
		},
		{
			name:    "read failure",
			storage: &fakeStorage{fail: true},
			dest:    func(dir string) string { return filepath.Join(dir, "a.part") },
			kind:    domain.NetworkError,
		},
		{
			name:    "unwritable destination",
			storage: &fakeStorage{content: map[string][]byte{"a.geojson": []byte("data")}},
			dest:    func(dir string) string { return filepath.Join(dir, "missing", "a.part") },
			kind:    domain.IOError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, d := newTestTransport(tt.storage)
			defer tr.Close()

			out, cb := collect()
			tr.BeginTransfer("a.geojson", tt.dest(t.TempDir()), cb)
			drain(t, d, out.finished)

			var te *domain.TransferError
			require.ErrorAs(t, out.err, &te)
			assert.Equal(t, tt.kind, te.Kind)
		})
	}
}

func TestQueryRemoteMetadata(t *testing.T) {
	tr, d := newTestTransport(&fakeStorage{content: map[string][]byte{"a.geojson": []byte("hello")}})
	defer tr.Close()

	var (
		meta    domain.RemoteMetadata
		err     error
		called  bool
		missing error
	)
	tr.QueryRemoteMetadata("a.geojson", func(m domain.RemoteMetadata, e error) {
		meta, err, called = m, e, true
	})
	drain(t, d, func() bool { return called })
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "e1", meta.ETag)

	called = false
	tr.QueryRemoteMetadata("missing", func(_ domain.RemoteMetadata, e error) {
		missing, called = e, true
	})
	drain(t, d, func() bool { return called })
	assert.ErrorIs(t, missing, domain.ErrObjectNotFound)
}

func TestQueryRemoteMetadataWithoutSize(t *testing.T) {
	tr, d := newTestTransport(&fakeStorage{content: map[string][]byte{"a.geojson": []byte("hello")}, noSize: true})
	defer tr.Close()

	var (
		err    error
		called bool
	)
	tr.QueryRemoteMetadata("a.geojson", func(_ domain.RemoteMetadata, e error) {
		err, called = e, true
	})
	drain(t, d, func() bool { return called })

	assert.ErrorIs(t, err, domain.ErrSizeUnknown)
	var te *domain.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.NetworkError, te.Kind)
}

func TestCloseCancelsRunningTransfers(t *testing.T) {
	tr, d := newTestTransport(&fakeStorage{block: true})

	out, cb := collect()
	tr.BeginTransfer("a", filepath.Join(t.TempDir(), "a.part"), cb)

	tr.Close()
	drain(t, d, func() bool { return out.cancelled })
	assert.Equal(t, 0, tr.Active())
}
