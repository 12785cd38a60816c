package crawler

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

// Downloader fetches assets, checks their declared type and stores them.
type Downloader struct {
	fetcher Fetcher
	store   BlobStore
	emitter progress.Emitter
	logger  *zap.Logger
}

// NewDownloader builds a Downloader. emitter and logger may be nil.
func NewDownloader(fetcher Fetcher, store BlobStore, emitter progress.Emitter, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher: fetcher,
		store:   store,
		emitter: progress.OrNop(emitter),
		logger:  logger,
	}
}

// Download fetches rawURL and writes it to folder/filename when the declared
// content type contains expectedKind. It returns the location reported by
// the store. Nothing is written on a type mismatch.
func (d *Downloader) Download(ctx context.Context, rawURL, filename, expectedKind, folder string) (string, error) {
	res, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !res.HasContentType(expectedKind) {
		return "", &ContentTypeError{URL: rawURL, Want: expectedKind, Got: res.ContentType}
	}
	location, err := d.store.PutObject(ctx, path.Join(folder, filename), res.ContentType, bytes.NewReader(res.Body))
	if err != nil {
		return "", fmt.Errorf("%w: write %s: %w", ErrStorage, filename, err)
	}
	d.logger.Debug("asset saved",
		zap.String("url", rawURL),
		zap.String("path", location),
		zap.Int("bytes", len(res.Body)),
	)
	d.emitter.Emit(progress.Event{
		Stage: progress.StageAssetSaved,
		URL:   rawURL,
		Bytes: int64(len(res.Body)),
		Note:  assetKindLabel(expectedKind),
	})
	return location, nil
}

func assetKindLabel(kind string) string {
	switch kind {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return kind
	}
}
