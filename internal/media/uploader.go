package media

import (
	"context"
	"fmt"
	"path"

	"rentonmap/internal/middleware"
	"rentonmap/internal/models"
	"rentonmap/internal/observability"

	"github.com/google/uuid"
)

const (
	// DefaultFolder is the key prefix for listing photos.
	DefaultFolder = "rental_properties_pictures"

	DefaultMaxUploadMB = 10
)

// Options configures an Uploader.
type Options struct {
	Folder      string
	MaxUploadMB int
	Normalizer  Normalizer
}

// Uploader turns the images array of a listing form into hosted URLs.
type Uploader struct {
	store      Store
	folder     string
	maxBytes   int
	normalizer Normalizer
}

func NewUploader(store Store, opts Options) *Uploader {
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = DefaultMaxUploadMB
	}
	return &Uploader{
		store:      store,
		folder:     opts.Folder,
		maxBytes:   opts.MaxUploadMB * 1024 * 1024,
		normalizer: opts.Normalizer,
	}
}

// ResolveImages uploads every data URI in images and returns the list with
// those entries replaced by their hosted URLs. Other entries pass through
// unchanged. If any upload fails, images uploaded by this call are removed.
func (u *Uploader) ResolveImages(ctx context.Context, images []string) ([]string, error) {
	out := make([]string, 0, len(images))
	var uploaded []string
	for _, img := range images {
		if !IsDataURI(img) {
			out = append(out, img)
			continue
		}
		url, err := u.upload(ctx, img)
		if err != nil {
			u.DeleteImages(ctx, uploaded)
			return nil, err
		}
		uploaded = append(uploaded, url)
		out = append(out, url)
	}
	return out, nil
}

func (u *Uploader) upload(ctx context.Context, dataURI string) (url string, err error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, u.store.Driver(), "media.Upload")
	defer func() {
		observability.EndSpan(span, err)
		observability.MediaOperations.WithLabelValues(u.store.Driver(), "upload", observability.Outcome(err)).Inc()
	}()

	_, raw, err := DecodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if len(raw) > u.maxBytes {
		return "", models.NewValidationError(fmt.Sprintf("Image too large (max %dMB)", u.maxBytes/(1024*1024)), "images")
	}
	enc, err := u.normalizer.Normalize(raw)
	if err != nil {
		return "", err
	}

	key := path.Join(u.folder, uuid.NewString()+enc.Ext)
	url, err = u.store.Put(ctx, key, enc.ContentType, enc.Data)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "image upload failed", "key", key, "error", err)
		return "", models.NewInternalError(fmt.Errorf("image upload failed: %w", err))
	}
	return url, nil
}

// DeleteImages removes the hosted objects behind urls. URLs this store did
// not produce are skipped. Failures are logged and counted, never returned.
func (u *Uploader) DeleteImages(ctx context.Context, urls []string) int {
	failed := 0
	for _, url := range urls {
		key, ok := u.store.KeyFromURL(url)
		if !ok {
			continue
		}
		err := u.store.Delete(ctx, key)
		observability.MediaOperations.WithLabelValues(u.store.Driver(), "delete", observability.Outcome(err)).Inc()
		if err != nil {
			failed++
			observability.LogAsyncOperationError(ctx, "media.delete", err, map[string]any{"key": key})
		}
	}
	return failed
}
