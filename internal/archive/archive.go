// Package archive snapshots raw detail pages to a blob store.
package archive

import (
	"bytes"
	"context"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/hash/sha256"
	"github.com/JakeFAU/legisnotice/internal/legislation"
)

const htmlContentType = "text/html; charset=utf-8"

// Archiver writes detail page bodies under {source}/{target}/{sha256(url)}.html.
// A nil *Archiver is valid and archives nothing.
type Archiver struct {
	store  legislation.BlobStore
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New returns an Archiver over store, or nil when store is nil.
func New(store legislation.BlobStore, logger *zap.Logger) *Archiver {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, hasher: sha256.New(), logger: logger.Named("archive")}
}

// Path returns the object path for a page.
func (a *Archiver) Path(source legislation.Source, targetDate, rawURL string) string {
	return path.Join(string(source), targetDate, a.hasher.HashString(rawURL)+".html")
}

// Snapshot stores body. Failures are logged and otherwise ignored.
func (a *Archiver) Snapshot(ctx context.Context, source legislation.Source, targetDate, rawURL string, body []byte) {
	if a == nil {
		return
	}
	p := a.Path(source, targetDate, rawURL)
	uri, err := a.store.PutObject(ctx, p, htmlContentType, bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("snapshot failed", zap.String("url", rawURL), zap.String("path", p), zap.Error(err))
		return
	}
	a.logger.Debug("snapshot stored", zap.String("url", rawURL), zap.String("uri", uri))
}
