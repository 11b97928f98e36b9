package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/murmurkit/murmur/pkg/engine"
	"github.com/murmurkit/murmur/pkg/logger"
)

// CacheEntry records one downloaded model file. An entry exists for an
// identifier exactly when a file exists at the deterministic cache path for
// that identifier.
type CacheEntry struct {
	ID   string
	Path string
	Size int64
}

// Options configures Initialize
type Options struct {
	// WithVoiceActivityDetection requests a secondary voice-activity handle
	// built from the same model file. Best-effort; failure does not fail
	// the initialization.
	WithVoiceActivityDetection bool
}

// InitResult is the outcome of Initialize. VADErr set with a non-nil Handle
// means the primary engine came up but voice-activity detection did not;
// callers observe the degraded state instead of inferring it from a nil
// field.
type InitResult struct {
	Descriptor Descriptor
	Handle     engine.Handle
	VAD        engine.VADHandle
	VADErr     error
}

// Degraded reports whether voice-activity detection was requested but failed
func (r InitResult) Degraded() bool {
	return r.VADErr != nil
}

// session holds the currently initialized handles and the identifier of the
// model they were built from
type session struct {
	id     string
	handle engine.Handle
	vad    engine.VADHandle
}

// Manager owns the model catalog's on-device state: cached files, download
// progress, and the active recognition session. It is a plain stateful
// struct with explicit construction; the UI holds read access only.
//
// Operations are expected to be invoked one at a time; the manager does not
// queue or dedup overlapping downloads for the same identifier. The mutex
// exists so the UI can poll progress and cache state while a download runs.
type Manager struct {
	cacheDir string
	engine   engine.Engine
	client   *http.Client

	mu          sync.Mutex
	entries     map[string]CacheEntry
	progress    map[string]float64
	downloading map[string]bool
	active      *session
}

// Option customizes a Manager
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for downloads
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// NewManager creates a manager that caches model files under cacheDir and
// builds recognition handles with eng. The cache directory is created if it
// does not exist; a pre-existing directory is not an error.
func NewManager(cacheDir string, eng engine.Engine, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model cache directory: %w", err)
	}

	m := &Manager{
		cacheDir:    cacheDir,
		engine:      eng,
		client:      http.DefaultClient,
		entries:     make(map[string]CacheEntry),
		progress:    make(map[string]float64),
		downloading: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// CacheDir returns the directory used for all model files
func (m *Manager) CacheDir() string {
	return m.cacheDir
}

// CachePath returns the deterministic cache path for a descriptor
func (m *Manager) CachePath(desc Descriptor) string {
	return filepath.Join(m.cacheDir, desc.Filename)
}

// ResolveOrDownload ensures the descriptor's model file is present locally
// and returns its path. A file already at the cache path is returned
// immediately with no network access. Otherwise the file is downloaded from
// the descriptor's source URL with fractional progress reported through
// Progress; a cache entry is only recorded after the transfer completes.
//
// Concurrent calls for the same identifier are a caller error; the manager
// does not merge them.
func (m *Manager) ResolveOrDownload(ctx context.Context, desc Descriptor) (string, error) {
	path := m.CachePath(desc)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		m.recordEntry(desc.ID, path, info.Size())
		return path, nil
	}

	m.mu.Lock()
	m.downloading[desc.ID] = true
	m.progress[desc.ID] = 0
	m.mu.Unlock()

	// The downloading flag is cleared on every exit path so the UI never
	// shows a perpetual busy state after a fault
	defer func() {
		m.mu.Lock()
		delete(m.downloading, desc.ID)
		m.mu.Unlock()
	}()

	if err := m.download(ctx, desc, path); err != nil {
		logger.Warning(logger.CategoryModel, "Download of %s failed: %v", desc.ID, err)
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &DownloadError{ID: desc.ID, Err: err}
	}

	m.setProgress(desc.ID, 1.0)
	m.recordEntry(desc.ID, path, info.Size())
	return path, nil
}

// Initialize resolves the identified model (downloading it when absent) and
// builds a recognition handle from it, superseding any previously active
// session. The active model identifier is set only after the primary handle
// succeeds. When voice-activity detection is requested, its failure is
// reported through InitResult.VADErr and never fails the call.
func (m *Manager) Initialize(ctx context.Context, id string, opts Options) (InitResult, error) {
	desc, ok := Lookup(id)
	if !ok {
		return InitResult{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}

	path, err := m.ResolveOrDownload(ctx, desc)
	if err != nil {
		return InitResult{}, err
	}

	handle, err := m.engine.Initialize(path)
	if err != nil {
		return InitResult{}, fmt.Errorf("%w: %s: %v", ErrInitializationFailed, id, err)
	}

	// The new handle supersedes the previous session; release its
	// engine-side resources before dropping the reference
	m.Reset()

	result := InitResult{Descriptor: desc, Handle: handle}

	if opts.WithVoiceActivityDetection {
		vad, vadErr := m.engine.InitializeVAD(path)
		if vadErr != nil {
			logger.Warning(logger.CategoryModel, "Voice activity detection unavailable for %s: %v", id, vadErr)
			result.VADErr = fmt.Errorf("%w: %v", ErrVoiceActivityInit, vadErr)
		} else {
			result.VAD = vad
		}
	}

	m.mu.Lock()
	m.active = &session{id: id, handle: handle, vad: result.VAD}
	m.mu.Unlock()

	logger.Info(logger.CategoryModel, "Model %s initialized", id)
	return result, nil
}

// Reset clears the active recognition handle, the voice-activity handle,
// and the active-model identifier. Cache and progress state are untouched.
// Idempotent.
func (m *Manager) Reset() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active == nil {
		return
	}

	if active.vad != nil {
		if err := active.vad.Close(); err != nil {
			logger.Warning(logger.CategoryModel, "Failed to close voice-activity handle: %v", err)
		}
	}
	if active.handle != nil {
		if err := active.handle.Close(); err != nil {
			logger.Warning(logger.CategoryModel, "Failed to close engine handle: %v", err)
		}
	}
}

// Delete removes the identified model's cached file and cache entry. When
// the deleted model is the currently active one, the active session is
// cleared first. Deleting an already-absent model is not an error.
//
// The manager does not track whether a transcription using the model is in
// progress; checking that is the caller's responsibility.
func (m *Manager) Delete(id string) error {
	desc, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}

	m.mu.Lock()
	isActive := m.active != nil && m.active.id == id
	m.mu.Unlock()

	if isActive {
		m.Reset()
	}

	path := m.CachePath(desc)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &DeleteError{ID: id, Err: err}
	}

	m.mu.Lock()
	delete(m.entries, id)
	delete(m.progress, id)
	m.mu.Unlock()

	logger.Info(logger.CategoryModel, "Model %s deleted", id)
	return nil
}

// Active returns the descriptor of the currently active model, if any
func (m *Manager) Active() (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Descriptor{}, false
	}
	return Lookup(m.active.id)
}

// ActiveHandle returns the currently active recognition and voice-activity
// handles, if any
func (m *Manager) ActiveHandle() (engine.Handle, engine.VADHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, nil, false
	}
	return m.active.handle, m.active.vad, true
}

// IsCached reports whether the identified model's file is present on disk.
// The file system is the source of truth; the entry map is refreshed to
// match.
func (m *Manager) IsCached(id string) bool {
	desc, ok := Lookup(id)
	if !ok {
		return false
	}

	path := m.CachePath(desc)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
		return false
	}

	m.recordEntry(id, path, info.Size())
	return true
}

// Entry returns the cache entry for the identified model, if one exists
func (m *Manager) Entry(id string) (CacheEntry, bool) {
	if !m.IsCached(id) {
		return CacheEntry{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	return entry, ok
}

// Progress returns the current download progress for the identifier as a
// fraction in [0,1]. Zero when no download has been observed.
func (m *Manager) Progress(id string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[id]
}

// IsDownloading reports whether a download for the identifier is in flight
func (m *Manager) IsDownloading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloading[id]
}

func (m *Manager) setProgress(id string, fraction float64) {
	m.mu.Lock()
	m.progress[id] = fraction
	m.mu.Unlock()
}

func (m *Manager) recordEntry(id, path string, size int64) {
	m.mu.Lock()
	m.entries[id] = CacheEntry{ID: id, Path: path, Size: size}
	m.mu.Unlock()
}
