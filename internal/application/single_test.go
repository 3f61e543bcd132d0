package application

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
)

type singleFixture struct {
	res       *SingleResource
	transport *fakeTransport
	state     *memStateStore
	rec       *recorder
	path      string
}

func newSingleFixture(t *testing.T, remote *domain.RemoteMetadata) *singleFixture {
	t.Helper()

	f := &singleFixture{
		transport: &fakeTransport{},
		state:     newMemStateStore(),
		rec:       &recorder{},
		path:      filepath.Join(t.TempDir(), "germany", "airspace.geojson"),
	}
	f.res = NewSingleResource(SingleResourceConfig{
		Key:       "germany/airspace.geojson",
		Identity:  domain.IdentityForKey("germany/airspace.geojson"),
		LocalPath: f.path,
	}, ResourceDeps{
		Transport: f.transport,
		State:     f.state,
		Logger:    testLogger(),
	})
	if remote != nil {
		f.res.SetRemoteMetadata(*remote)
	}
	f.res.Subscribe(f.rec.listen)
	return f
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// leftoverTemps lists the temporary files next to path.
func leftoverTemps(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + ".*" + tempSuffix)
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestSingleStartDownload(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 4})

	f.res.StartDownload()

	if got := f.res.TransferState(); got != domain.StateDownloading {
		t.Fatalf("TransferState() = %v, want downloading", got)
	}
	if !f.res.Downloading() {
		t.Error("Downloading() = false")
	}
	if len(f.transport.transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(f.transport.transfers))
	}
	call := f.transport.last()
	if call.ref != "germany/airspace.geojson" {
		t.Errorf("ref = %q", call.ref)
	}
	if filepath.Dir(call.dest) != filepath.Dir(f.path) || !isTempOf(filepath.Base(call.dest), filepath.Base(f.path)) {
		t.Errorf("dest = %q, want a temp file next to %q", call.dest, f.path)
	}
	if !fileExists(call.dest) {
		t.Error("temp file not reserved")
	}
	if got := f.rec.count(domain.SignalDownloadingChanged); got != 1 {
		t.Errorf("downloading_changed = %d, want 1", got)
	}
}

func TestSingleStartDownloadCoalesces(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 100})

	f.res.StartDownload()
	f.transport.last().cb.OnProgress(40)
	f.res.StartDownload()

	if len(f.transport.transfers) != 1 {
		t.Errorf("transfers = %d, want 1", len(f.transport.transfers))
	}
	if got := f.res.TransferState(); got != domain.StateDownloading {
		t.Errorf("TransferState() = %v, want downloading", got)
	}
	if got := f.res.BytesReceived(); got != 40 {
		t.Errorf("BytesReceived() = %d, want 40", got)
	}
	if got := f.res.InfoText(); got != "Downloading... 40%" {
		t.Errorf("InfoText() = %q", got)
	}
}

func TestSingleCompletePromotesFile(t *testing.T) {
	meta := domain.RemoteMetadata{Size: 5, ETag: "abc"}
	f := newSingleFixture(t, &meta)

	f.res.StartDownload()
	f.transport.last().complete(t, []byte("hello"))

	if got := f.res.TransferState(); got != domain.StateIdle {
		t.Errorf("TransferState() = %v, want idle", got)
	}
	if !f.res.HasFile() {
		t.Fatal("HasFile() = false after completion")
	}
	data, err := os.ReadFile(f.path)
	if err != nil || string(data) != "hello" {
		t.Errorf("canonical file = %q, %v", data, err)
	}
	if got := leftoverTemps(t, f.path); len(got) != 0 {
		t.Errorf("temp files left behind: %v", got)
	}
	if rec, ok := f.state.records[f.res.Key()]; !ok || rec.Remote != meta {
		t.Errorf("state record = %+v, %v", rec, ok)
	}
	if got := f.res.UpdateSize(); got != 0 {
		t.Errorf("UpdateSize() = %d, want 0", got)
	}
	for _, s := range []domain.Signal{
		domain.SignalHasFileChanged,
		domain.SignalFileContentChanged,
		domain.SignalUpdateSizeChanged,
	} {
		if f.rec.count(s) != 1 {
			t.Errorf("%v = %d, want 1", s, f.rec.count(s))
		}
	}
	if got := f.rec.count(domain.SignalDownloadingChanged); got != 2 {
		t.Errorf("downloading_changed = %d, want 2", got)
	}
}

func TestSingleStopDownload(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 100})

	f.res.StopDownload()
	if len(f.transport.cancels) != 0 {
		t.Fatal("StopDownload while idle cancelled something")
	}

	f.res.StartDownload()
	call := f.transport.last()
	writeFile(t, call.dest, []byte("partial"))

	f.res.StopDownload()
	if got := f.res.TransferState(); got != domain.StateCancelling {
		t.Fatalf("TransferState() = %v, want cancelling", got)
	}
	if !f.res.Downloading() {
		t.Error("Downloading() = false while cancelling")
	}

	f.res.StopDownload()
	if len(f.transport.cancels) != 1 || f.transport.cancels[0] != call.handle {
		t.Errorf("cancels = %v, want [%s]", f.transport.cancels, call.handle)
	}

	call.cb.OnCancelled()

	if got := f.res.TransferState(); got != domain.StateIdle {
		t.Errorf("TransferState() = %v, want idle", got)
	}
	if f.res.HasFile() {
		t.Error("HasFile() = true after cancelled download")
	}
	if fileExists(call.dest) || fileExists(f.path) {
		t.Error("partial data left on disk")
	}
	if f.res.LastError() != nil {
		t.Error("cancellation set LastError")
	}
}

func TestSingleCancelKeepsExistingFile(t *testing.T) {
	f := newSingleFixture(t, nil)
	writeFile(t, f.path, []byte("old"))
	f.res.Rescan()
	f.res.SetRemoteMetadata(domain.RemoteMetadata{Size: 10})

	f.res.StartDownload()
	f.res.StopDownload()
	f.transport.last().cb.OnCancelled()

	data, err := os.ReadFile(f.path)
	if err != nil || string(data) != "old" {
		t.Errorf("canonical file = %q, %v, want old", data, err)
	}
	if !f.res.HasFile() {
		t.Error("HasFile() changed by a cancelled download")
	}
}

func TestSingleCompletionWhileCancellingIsDiscarded(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 5})

	f.res.StartDownload()
	f.res.StopDownload()
	f.transport.last().complete(t, []byte("hello"))

	if f.res.HasFile() {
		t.Error("HasFile() = true, completion after cancel must be discarded")
	}
	if got := leftoverTemps(t, f.path); len(got) != 0 {
		t.Errorf("temp files left behind: %v", got)
	}
	if got := f.res.TransferState(); got != domain.StateIdle {
		t.Errorf("TransferState() = %v, want idle", got)
	}
}

func TestSingleTransferError(t *testing.T) {
	f := newSingleFixture(t, nil)
	writeFile(t, f.path, []byte("old"))
	f.res.Rescan()
	f.res.SetRemoteMetadata(domain.RemoteMetadata{Size: 3, Version: "2"})

	f.res.StartDownload()
	call := f.transport.last()
	writeFile(t, call.dest, []byte("x"))
	call.cb.OnError(errors.New("connection reset"))

	info := f.res.LastError()
	if info == nil {
		t.Fatal("LastError() = nil")
	}
	if info.Kind != domain.NetworkError {
		t.Errorf("Kind = %v, want network", info.Kind)
	}
	if !strings.Contains(info.Message, "connection reset") {
		t.Errorf("Message = %q", info.Message)
	}
	if got := f.res.TransferState(); got != domain.StateIdle {
		t.Errorf("TransferState() = %v, want idle", got)
	}
	if data, _ := os.ReadFile(f.path); string(data) != "old" {
		t.Errorf("canonical file changed to %q", data)
	}
	if fileExists(call.dest) {
		t.Error("temp file left behind")
	}
	if got := f.rec.count(domain.SignalError); got != 1 {
		t.Errorf("error events = %d, want 1", got)
	}
}

func TestSingleLastErrorClearedOnlyOnSuccess(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 2})

	f.res.StartDownload()
	f.transport.last().cb.OnError(errors.New("unreachable"))

	f.res.StartDownload()
	f.transport.last().cb.OnProgress(1)
	if f.res.LastError() == nil {
		t.Fatal("LastError() cleared before completion")
	}

	f.transport.last().complete(t, []byte("ok"))
	if f.res.LastError() != nil {
		t.Error("LastError() not cleared after successful completion")
	}
}

func TestSingleIOErrorKindPassesThrough(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 2})

	f.res.StartDownload()
	f.transport.last().cb.OnError(&domain.TransferError{
		Kind: domain.IOError,
		Err:  errors.New("disk full"),
	})

	info := f.res.LastError()
	if info == nil || info.Kind != domain.IOError {
		t.Fatalf("LastError() = %+v, want io error", info)
	}
}

func TestSingleSizeMismatchFails(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 10})

	f.res.StartDownload()
	f.transport.last().complete(t, []byte("short"))

	if f.res.HasFile() {
		t.Error("incomplete transfer was promoted")
	}
	info := f.res.LastError()
	if info == nil || info.Kind != domain.NetworkError {
		t.Fatalf("LastError() = %+v, want network error", info)
	}
	if !strings.Contains(info.Message, "incomplete transfer") {
		t.Errorf("Message = %q", info.Message)
	}
}

func TestSingleStaleCallbacksIgnored(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})

	f.res.StartDownload()
	first := f.transport.last()
	f.res.StopDownload()
	first.cb.OnCancelled()

	f.res.StartDownload()
	second := f.transport.last()

	first.cb.OnCancelled()
	first.cb.OnError(errors.New("late"))
	if got := f.res.TransferState(); got != domain.StateDownloading {
		t.Fatalf("stale callback changed state to %v", got)
	}
	if f.res.LastError() != nil {
		t.Error("stale error callback recorded")
	}

	second.complete(t, []byte("new"))
	if !f.res.HasFile() {
		t.Error("current transfer not promoted")
	}
}

func TestSingleUpdateSize(t *testing.T) {
	tests := []struct {
		name   string
		local  []byte
		record *domain.RemoteMetadata
		remote *domain.RemoteMetadata
		want   int64
	}{
		{
			name:   "no local file",
			remote: &domain.RemoteMetadata{Size: 100},
			want:   0,
		},
		{
			name:  "unknown remote",
			local: []byte("abc"),
			want:  0,
		},
		{
			name:   "up to date",
			local:  []byte("abc"),
			record: &domain.RemoteMetadata{Size: 3, Version: "1.0.0"},
			remote: &domain.RemoteMetadata{Size: 3, Version: "1.0.0"},
			want:   0,
		},
		{
			name:   "newer version",
			local:  []byte("abc"),
			record: &domain.RemoteMetadata{Size: 3, Version: "1.0.0"},
			remote: &domain.RemoteMetadata{Size: 120, Version: "1.1.0"},
			want:   120,
		},
		{
			name:   "older version",
			local:  []byte("abc"),
			record: &domain.RemoteMetadata{Size: 3, Version: "2.0.0"},
			remote: &domain.RemoteMetadata{Size: 120, Version: "1.1.0"},
			want:   0,
		},
		{
			name:   "no record, size differs",
			local:  []byte("abc"),
			remote: &domain.RemoteMetadata{Size: 50},
			want:   50,
		},
		{
			name:   "no record, size matches",
			local:  []byte("abc"),
			remote: &domain.RemoteMetadata{Size: 3},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSingleFixture(t, nil)
			if tt.local != nil {
				writeFile(t, f.path, tt.local)
			}
			if tt.record != nil {
				f.state.records[f.res.Key()] = domain.LocalRecord{Key: f.res.Key(), Remote: *tt.record}
			}
			// Re-create so the constructor sees the file and the record.
			res := NewSingleResource(SingleResourceConfig{
				Key:       f.res.Key(),
				Identity:  f.res.Identity(),
				LocalPath: f.path,
			}, ResourceDeps{Transport: f.transport, State: f.state, Logger: testLogger()})
			if tt.remote != nil {
				res.SetRemoteMetadata(*tt.remote)
			}

			if got := res.UpdateSize(); got != tt.want {
				t.Errorf("UpdateSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSingleUpdate(t *testing.T) {
	t.Run("fresh file is a no-op", func(t *testing.T) {
		f := newSingleFixture(t, nil)
		writeFile(t, f.path, []byte("abc"))
		f.res.Rescan()
		f.res.SetRemoteMetadata(domain.RemoteMetadata{Size: 3})

		f.res.Update()
		if len(f.transport.transfers) != 0 {
			t.Error("Update started a transfer for a fresh file")
		}
	})

	t.Run("no file is a no-op", func(t *testing.T) {
		f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})
		f.res.Update()
		if len(f.transport.transfers) != 0 {
			t.Error("Update started a transfer without a local file")
		}
	})

	t.Run("stale file is replaced", func(t *testing.T) {
		f := newSingleFixture(t, nil)
		writeFile(t, f.path, []byte("abc"))
		f.res.Rescan()
		f.res.SetRemoteMetadata(domain.RemoteMetadata{Size: 5})

		f.res.Update()
		if len(f.transport.transfers) != 1 {
			t.Fatalf("transfers = %d, want 1", len(f.transport.transfers))
		}
		if data, _ := os.ReadFile(f.path); string(data) != "abc" {
			t.Error("canonical file touched before promotion")
		}

		f.transport.last().complete(t, []byte("fresh"))
		if data, _ := os.ReadFile(f.path); string(data) != "fresh" {
			t.Errorf("canonical file = %q, want fresh", data)
		}
		if got := f.res.UpdateSize(); got != 0 {
			t.Errorf("UpdateSize() = %d after update, want 0", got)
		}
	})
}

func TestSingleDeleteFiles(t *testing.T) {
	meta := domain.RemoteMetadata{Size: 3}
	f := newSingleFixture(t, &meta)
	writeFile(t, f.path, []byte("abc"))
	writeFile(t, f.path+".part", []byte("a"))
	writeFile(t, f.path+".1234.part", []byte("b"))
	sibling := filepath.Join(filepath.Dir(f.path), "airspace.geojson2.5.part")
	writeFile(t, sibling, []byte("c"))
	f.res.Rescan()
	f.state.records[f.res.Key()] = domain.LocalRecord{Key: f.res.Key(), Remote: meta}
	f.rec.events = nil

	f.res.DeleteFiles()
	f.res.DeleteFiles()

	if f.res.HasFile() {
		t.Error("HasFile() = true after DeleteFiles")
	}
	if fileExists(f.path) || fileExists(f.path+".part") || len(leftoverTemps(t, f.path)) != 0 {
		t.Error("files left on disk")
	}
	if !fileExists(sibling) {
		t.Error("temp file of another resource removed")
	}
	if _, ok := f.state.records[f.res.Key()]; ok {
		t.Error("state record not deleted")
	}
	if got, ok := f.res.RemoteSize(); !ok || got != 3 {
		t.Errorf("RemoteSize() = %d, %v, want 3, true", got, ok)
	}
	if got := f.rec.count(domain.SignalHasFileChanged); got != 1 {
		t.Errorf("has_file_changed = %d, want 1", got)
	}
	if f.res.LastError() != nil {
		t.Errorf("LastError() = %+v", f.res.LastError())
	}
}

func TestSingleDeleteFilesStopsDownload(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})

	f.res.StartDownload()
	dest := f.transport.last().dest
	f.res.DeleteFiles()

	if fileExists(dest) {
		t.Error("in-progress temp file kept")
	}
	if got := f.res.TransferState(); got != domain.StateCancelling {
		t.Errorf("TransferState() = %v, want cancelling", got)
	}
	if len(f.transport.cancels) != 1 {
		t.Errorf("cancels = %d, want 1", len(f.transport.cancels))
	}
}

func TestSingleDestroy(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})

	f.res.StartDownload()
	call := f.transport.last()
	writeFile(t, call.dest, []byte("a"))
	f.rec.events = nil

	f.res.Destroy()

	if f.res.Valid() {
		t.Error("Valid() = true after Destroy")
	}
	if len(f.transport.cancels) != 1 {
		t.Errorf("cancels = %d, want 1", len(f.transport.cancels))
	}

	call.cb.OnCancelled()
	if fileExists(call.dest) {
		t.Error("temp file not removed after destroy")
	}

	f.res.StartDownload()
	if len(f.transport.transfers) != 1 {
		t.Error("destroyed resource started a transfer")
	}
	if len(f.rec.events) != 0 {
		t.Errorf("destroyed resource emitted %d events", len(f.rec.events))
	}
	if f.res.InfoText() != "" || f.res.Description() != "" {
		t.Error("destroyed resource still describes itself")
	}
}

func TestSingleReplacementKeepsItsOwnTempFile(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})

	f.res.StartDownload()
	old := f.transport.last()
	f.res.Destroy()

	successor := NewSingleResource(SingleResourceConfig{
		Key:       f.res.Key(),
		Identity:  f.res.Identity(),
		LocalPath: f.path,
	}, ResourceDeps{Transport: f.transport, Logger: testLogger()})
	successor.SetRemoteMetadata(domain.RemoteMetadata{Size: 3})
	successor.StartDownload()
	current := f.transport.last()
	if current.dest == old.dest {
		t.Fatalf("successor reuses temp file %q", old.dest)
	}

	old.cb.OnCancelled()
	current.complete(t, []byte("abc"))

	if !successor.HasFile() {
		t.Fatal("HasFile() = false, late callback of the destroyed resource removed the successor's download")
	}
	if info := successor.LastError(); info != nil {
		t.Errorf("LastError() = %+v", info)
	}
	if data, _ := os.ReadFile(f.path); string(data) != "abc" {
		t.Errorf("canonical file = %q, want abc", data)
	}
}

func TestSingleRemovesStaleTempsOnCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "germany")
	path := filepath.Join(dir, "airspace.geojson")
	writeFile(t, path+".part", []byte("a"))
	writeFile(t, path+".42.part", []byte("b"))
	writeFile(t, filepath.Join(dir, "airspace.geojson.bak"), []byte("c"))

	NewSingleResource(SingleResourceConfig{Key: "germany/airspace.geojson", LocalPath: path},
		ResourceDeps{Transport: &fakeTransport{}, Logger: testLogger()})

	if fileExists(path+".part") || fileExists(path+".42.part") {
		t.Error("stale temp files kept")
	}
	if !fileExists(filepath.Join(dir, "airspace.geojson.bak")) {
		t.Error("unrelated file removed")
	}
}

func TestIsTempOf(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.geojson.part", true},
		{"a.geojson.123.part", true},
		{"a.geojson", false},
		{"a.geojson..part", false},
		{"a.geojson.x1.part", false},
		{"a.geojson.1.2.part", false},
		{"a.geojson2.5.part", false},
		{"b.geojson.5.part", false},
	}
	for _, tt := range tests {
		if got := isTempOf(tt.name, "a.geojson"); got != tt.want {
			t.Errorf("isTempOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSingleApplyListingQueriesSize(t *testing.T) {
	f := newSingleFixture(t, nil)
	f.transport.meta = map[string]domain.RemoteMetadata{
		f.res.Key(): {Size: 30, ETag: "e1"},
	}

	if !f.res.ApplyListing(domain.RemoteMetadata{Version: "2024.03"}) {
		t.Error("first listing not reported as changed")
	}
	meta, ok := f.res.RemoteMetadata()
	if !ok || meta.Size != 30 || meta.ETag != "e1" || meta.Version != "2024.03" {
		t.Errorf("RemoteMetadata() = %+v, %v", meta, ok)
	}

	if f.res.ApplyListing(domain.RemoteMetadata{Version: "2024.03"}) {
		t.Error("repeated listing reported as changed")
	}
	if f.transport.queries != 1 {
		t.Errorf("queries = %d, want 1", f.transport.queries)
	}

	f.res.ApplyListing(domain.RemoteMetadata{Version: "2024.04"})
	if meta, _ := f.res.RemoteMetadata(); meta.Version != "2024.04" || f.transport.queries != 2 {
		t.Errorf("new version not queried: %+v, queries = %d", meta, f.transport.queries)
	}
}

func TestSingleApplyListingQueryFails(t *testing.T) {
	f := newSingleFixture(t, nil)
	f.transport.metaErr = &domain.TransferError{Kind: domain.NetworkError, Err: domain.ErrSizeUnknown}

	f.res.ApplyListing(domain.RemoteMetadata{})

	if size, ok := f.res.RemoteSize(); ok {
		t.Errorf("RemoteSize() = %d, true, want unknown", size)
	}
	if info := f.res.LastError(); info == nil || info.Kind != domain.NetworkError {
		t.Errorf("LastError() = %+v, want network error", info)
	}

	// The size stays unknown, so the same listing asks again.
	f.res.ApplyListing(domain.RemoteMetadata{})
	if f.transport.queries != 2 {
		t.Errorf("queries = %d, want 2", f.transport.queries)
	}
}

func TestSingleCompletionWithoutRemoteSizeKeepsListing(t *testing.T) {
	f := newSingleFixture(t, nil)
	f.transport.metaErr = domain.ErrSizeUnknown
	f.res.ApplyListing(domain.RemoteMetadata{Version: "7"})

	f.res.StartDownload()
	f.transport.last().complete(t, []byte("hello"))

	meta, ok := f.res.RemoteMetadata()
	if !ok || meta.Size != 5 || meta.Version != "7" {
		t.Errorf("RemoteMetadata() = %+v, %v, want size 5 version 7", meta, ok)
	}
	if f.res.Stale() {
		t.Error("Stale() = true right after download")
	}
}

func TestSingleRefreshRemoteMetadata(t *testing.T) {
	f := newSingleFixture(t, nil)
	f.transport.meta = map[string]domain.RemoteMetadata{
		f.res.Key(): {Size: 42, LastModified: time.Now().Add(-time.Hour)},
	}

	f.res.RefreshRemoteMetadata()
	if got, ok := f.res.RemoteSize(); !ok || got != 42 {
		t.Fatalf("RemoteSize() = %d, %v, want 42, true", got, ok)
	}

	f.transport.metaErr = errors.New("host unreachable")
	f.res.RefreshRemoteMetadata()
	if _, ok := f.res.RemoteSize(); ok {
		t.Error("RemoteSize() still known after failed query")
	}
	if info := f.res.LastError(); info == nil || info.Kind != domain.NetworkError {
		t.Errorf("LastError() = %+v, want network error", info)
	}
}

func TestSingleRescanDetectsOutOfBandChanges(t *testing.T) {
	f := newSingleFixture(t, &domain.RemoteMetadata{Size: 3})

	writeFile(t, f.path, []byte("abc"))
	f.res.Rescan()
	if !f.res.HasFile() {
		t.Fatal("HasFile() = false after file appeared")
	}

	if err := os.Remove(f.path); err != nil {
		t.Fatal(err)
	}
	f.res.Rescan()
	if f.res.HasFile() {
		t.Error("HasFile() = true after file vanished")
	}
	if got := f.rec.count(domain.SignalHasFileChanged); got != 2 {
		t.Errorf("has_file_changed = %d, want 2", got)
	}
}

func TestSingleInfoText(t *testing.T) {
	f := newSingleFixture(t, nil)
	if got := f.res.InfoText(); got != "Not installed" {
		t.Errorf("InfoText() = %q", got)
	}

	f.res.SetRemoteMetadata(domain.RemoteMetadata{Size: 2000})
	if got := f.res.InfoText(); got != "Not installed: 2.0 kB" {
		t.Errorf("InfoText() = %q", got)
	}

	writeFile(t, f.path, bytes.Repeat([]byte("x"), 1000))
	f.res.Rescan()
	if got := f.res.InfoText(); got != "Update available: 2.0 kB" {
		t.Errorf("InfoText() = %q", got)
	}

	f.res.StartDownload()
	f.res.StopDownload()
	if got := f.res.InfoText(); got != "Cancelling download..." {
		t.Errorf("InfoText() = %q", got)
	}
}
