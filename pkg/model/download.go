package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/murmurkit/murmur/pkg/logger"
)

// download fetches the descriptor's source URL into destPath. The transfer
// goes through a temporary file so a failed download never leaves a partial
// file at the cache path. Fractional progress is reported through the
// manager's progress map as the body streams in.
func (m *Manager) download(ctx context.Context, desc Descriptor, destPath string) error {
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return &DownloadError{ID: desc.ID, Err: err}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return &DownloadError{ID: desc.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{ID: desc.ID, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	total := resp.ContentLength
	if total > 0 {
		logger.Info(logger.CategoryModel, "Downloading %s (%.1f MB). This may take a while...",
			desc.ID, float64(total)/1024/1024)
	} else {
		logger.Info(logger.CategoryModel, "Downloading %s. Size unknown. This may take a while...", desc.ID)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return &DownloadError{ID: desc.ID, Err: err}
	}

	reader := io.TeeReader(resp.Body, &progressWriter{
		manager: m,
		id:      desc.ID,
		total:   total,
	})

	written, err := io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &DownloadError{ID: desc.ID, Err: err}
	}

	if total > 0 && written != total {
		return &DownloadError{ID: desc.ID, Err: fmt.Errorf("short transfer: %d of %d bytes", written, total)}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return &DownloadError{ID: desc.ID, Err: err}
	}

	logger.Info(logger.CategoryModel, "Model %s downloaded to %s", desc.ID, destPath)
	return nil
}

// progressWriter converts written byte counts into the [0,1] fraction the
// manager exposes to the UI
type progressWriter struct {
	manager    *Manager
	id         string
	total      int64
	downloaded int64
}

// Write updates the manager's progress map as bytes stream through
func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	if pw.total > 0 {
		fraction := float64(pw.downloaded) / float64(pw.total)
		if fraction > 1.0 {
			fraction = 1.0
		}
		pw.manager.setProgress(pw.id, fraction)
	}

	return n, nil
}
