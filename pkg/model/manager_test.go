package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/murmurkit/murmur/pkg/engine"
)

// fakeHandle implements engine.Handle for manager tests
type fakeHandle struct {
	modelPath string
	mu        sync.Mutex
	closed    bool
}

func (h *fakeHandle) Transcribe(ctx context.Context, wavPath string, opts engine.TranscribeOptions) (string, error) {
	return "", nil
}

func (h *fakeHandle) TranscribeRealtime(opts engine.RealtimeOptions) (engine.Stream, error) {
	return nil, errors.New("not supported by fake handle")
}

func (h *fakeHandle) ModelPath() string {
	return h.modelPath
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeVAD implements engine.VADHandle for manager tests
type fakeVAD struct {
	closed bool
}

func (v *fakeVAD) Detect(samples []float32) bool { return false }
func (v *fakeVAD) Close() error {
	v.closed = true
	return nil
}

// fakeEngine implements engine.Engine and records every handle it creates
type fakeEngine struct {
	initErr error
	vadErr  error
	handles []*fakeHandle
}

func (e *fakeEngine) Initialize(modelPath string) (engine.Handle, error) {
	if e.initErr != nil {
		return nil, e.initErr
	}
	h := &fakeHandle{modelPath: modelPath}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *fakeEngine) InitializeVAD(modelPath string) (engine.VADHandle, error) {
	if e.vadErr != nil {
		return nil, e.vadErr
	}
	return &fakeVAD{}, nil
}

func newTestManager(t *testing.T, eng engine.Engine) *Manager {
	t.Helper()

	m, err := NewManager(t.TempDir(), eng)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

// seedCachedModel puts a dummy model file at the catalog path for id
func seedCachedModel(t *testing.T, m *Manager, id string) string {
	t.Helper()

	desc, ok := Lookup(id)
	if !ok {
		t.Fatalf("catalog is missing %q", id)
	}
	path := m.CachePath(desc)
	if err := os.WriteFile(path, []byte("dummy model data"), 0644); err != nil {
		t.Fatalf("Failed to seed model file: %v", err)
	}
	return path
}

func TestResolveOrDownloadIdempotent(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("model payload bytes"))
	}))
	defer server.Close()

	m := newTestManager(t, &fakeEngine{})
	desc := Descriptor{ID: "tiny", URL: server.URL + "/tiny.bin", Filename: "tiny.bin"}

	first, err := m.ResolveOrDownload(context.Background(), desc)
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("Expected 1 download, got %d", got)
	}

	second, err := m.ResolveOrDownload(context.Background(), desc)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("Second resolve hit the network: %d requests", got)
	}
	if first != second {
		t.Errorf("Paths differ between calls: %q vs %q", first, second)
	}

	want := filepath.Join(m.CacheDir(), "tiny.bin")
	if first != want {
		t.Errorf("Expected path %q, got %q", want, first)
	}
	if entry, ok := m.Entry("tiny"); !ok || entry.Path != want {
		t.Errorf("Expected cache entry for tiny at %q, got %+v (ok=%v)", want, entry, ok)
	}
}

func TestDownloadProgressMonotonic(t *testing.T) {
	payload := make([]byte, 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		flusher := w.(http.Flusher)
		for i := 0; i < len(payload); i += 4096 {
			w.Write(payload[i : i+4096])
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
	}))
	defer server.Close()

	m := newTestManager(t, &fakeEngine{})
	desc := Descriptor{ID: "tiny", URL: server.URL + "/tiny.bin", Filename: "tiny.bin"}

	// Sample progress while the download runs
	done := make(chan struct{})
	downloadDone := doneWhen(m, "tiny")
	var samples []float64
	go func() {
		defer close(done)
		for {
			select {
			case <-time.After(time.Millisecond):
				samples = append(samples, m.Progress("tiny"))
			case <-downloadDone:
				return
			}
		}
	}()

	if _, err := m.ResolveOrDownload(context.Background(), desc); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	<-done

	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			t.Fatalf("Progress decreased: %v -> %v at sample %d", samples[i-1], samples[i], i)
		}
	}
	if got := m.Progress("tiny"); got != 1.0 {
		t.Errorf("Expected final progress 1.0, got %v", got)
	}
}

// doneWhen yields a channel that closes once the identifier stops downloading
func doneWhen(m *Manager, id string) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		// Wait for the download to start first
		for !m.IsDownloading(id) {
			time.Sleep(time.Millisecond)
		}
		for m.IsDownloading(id) {
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}

func TestFailedDownloadLeavesNoCacheEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	m := newTestManager(t, &fakeEngine{})
	desc := Descriptor{ID: "tiny", URL: server.URL + "/tiny.bin", Filename: "tiny.bin"}

	_, err := m.ResolveOrDownload(context.Background(), desc)
	if err == nil {
		t.Fatal("Expected an error for a 500 response")
	}

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Expected *DownloadError, got %T: %v", err, err)
	}
	if dlErr.ID != "tiny" {
		t.Errorf("Expected error to carry id tiny, got %q", dlErr.ID)
	}

	if m.IsCached("tiny") {
		t.Error("Model reported cached after failed download")
	}
	if _, err := os.Stat(m.CachePath(desc)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no file at cache path, stat err = %v", err)
	}
	if m.IsDownloading("tiny") {
		t.Error("Downloading flag still set after failure")
	}
}

func TestInitializeUnknownModel(t *testing.T) {
	m := newTestManager(t, &fakeEngine{})

	_, err := m.Initialize(context.Background(), "no-such-model", Options{})
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("Expected ErrUnknownModel, got %v", err)
	}
}

func TestInitializeSupersedes(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, eng)
	seedCachedModel(t, m, "tiny")
	seedCachedModel(t, m, "base")

	first, err := m.Initialize(context.Background(), "tiny", Options{})
	if err != nil {
		t.Fatalf("Initialize tiny failed: %v", err)
	}

	if _, err := m.Initialize(context.Background(), "base", Options{}); err != nil {
		t.Fatalf("Initialize base failed: %v", err)
	}

	if !first.Handle.(*fakeHandle).isClosed() {
		t.Error("Superseded handle was not closed")
	}

	active, ok := m.Active()
	if !ok || active.ID != "base" {
		t.Errorf("Expected active model base, got %+v (ok=%v)", active, ok)
	}

	open := 0
	for _, h := range eng.handles {
		if !h.isClosed() {
			open++
		}
	}
	if open != 1 {
		t.Errorf("Expected exactly one open handle, got %d", open)
	}
}

func TestInitializeFailureKeepsNoActiveModel(t *testing.T) {
	eng := &fakeEngine{initErr: errors.New("bad weights")}
	m := newTestManager(t, eng)
	seedCachedModel(t, m, "tiny")

	_, err := m.Initialize(context.Background(), "tiny", Options{})
	if !errors.Is(err, ErrInitializationFailed) {
		t.Fatalf("Expected ErrInitializationFailed, got %v", err)
	}

	if _, ok := m.Active(); ok {
		t.Error("Active model set after failed initialization")
	}
}

func TestVADFailureIsNonFatal(t *testing.T) {
	eng := &fakeEngine{vadErr: errors.New("vad unsupported")}
	m := newTestManager(t, eng)
	seedCachedModel(t, m, "tiny")

	res, err := m.Initialize(context.Background(), "tiny", Options{WithVoiceActivityDetection: true})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if res.Handle == nil {
		t.Fatal("Expected a primary handle despite VAD failure")
	}
	if res.VAD != nil {
		t.Error("Expected nil VAD handle")
	}
	if !errors.Is(res.VADErr, ErrVoiceActivityInit) {
		t.Errorf("Expected VADErr to wrap ErrVoiceActivityInit, got %v", res.VADErr)
	}
	if !res.Degraded() {
		t.Error("Expected Degraded() to report true")
	}

	if active, ok := m.Active(); !ok || active.ID != "tiny" {
		t.Errorf("Expected tiny active, got %+v (ok=%v)", active, ok)
	}
}

func TestDeleteClearsActiveState(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, eng)
	seedCachedModel(t, m, "tiny")

	res, err := m.Initialize(context.Background(), "tiny", Options{})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if err := m.Delete("tiny"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok := m.Active(); ok {
		t.Error("Active model still set after delete")
	}
	if m.IsCached("tiny") {
		t.Error("Model reported cached after delete")
	}
	if !res.Handle.(*fakeHandle).isClosed() {
		t.Error("Handle not closed after deleting the active model")
	}

	// Deleting an already-absent model is not an error
	if err := m.Delete("tiny"); err != nil {
		t.Errorf("Second delete returned error: %v", err)
	}
}

func TestDeleteUnknownModel(t *testing.T) {
	m := newTestManager(t, &fakeEngine{})

	if err := m.Delete("no-such-model"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("Expected ErrUnknownModel, got %v", err)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	m := newTestManager(t, eng)
	seedCachedModel(t, m, "tiny")

	if _, err := m.Initialize(context.Background(), "tiny", Options{}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	m.Reset()
	if _, ok := m.Active(); ok {
		t.Error("Active model still set after reset")
	}

	// Cache state must survive a reset
	if !m.IsCached("tiny") {
		t.Error("Cache entry lost after reset")
	}

	m.Reset() // second reset is a no-op
}

func TestEndToEndTinyScenario(t *testing.T) {
	var requests atomic.Int64
	payload := []byte("tiny model payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	m := newTestManager(t, &fakeEngine{})
	desc := Descriptor{ID: "tiny", URL: server.URL + "/tiny.bin", Filename: "tiny.bin"}

	path, err := m.ResolveOrDownload(context.Background(), desc)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("Expected exactly one download, got %d", got)
	}
	if got := m.Progress("tiny"); got != 1.0 {
		t.Errorf("Expected progress 1.0, got %v", got)
	}

	want := filepath.Join(m.CacheDir(), "tiny.bin")
	entry, ok := m.Entry("tiny")
	if !ok || entry.Path != want {
		t.Errorf("Expected cache entry tiny -> %q, got %+v (ok=%v)", want, entry, ok)
	}
	if entry.Size != int64(len(payload)) {
		t.Errorf("Expected entry size %d, got %d", len(payload), entry.Size)
	}

	again, err := m.ResolveOrDownload(context.Background(), desc)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if again != path {
		t.Errorf("Second resolve returned %q, want %q", again, path)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("Second resolve issued a download (%d total)", got)
	}
}
