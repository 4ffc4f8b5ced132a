package messagereader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/Amund211/msgstore/internal/domain"
	"github.com/Amund211/msgstore/internal/logging"
	"github.com/Amund211/msgstore/internal/reporting"
	"github.com/Amund211/msgstore/internal/strutils"
	"github.com/h2non/filetype"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	textContentType   = "text/plain; charset=utf-8"
	binaryContentType = "application/octet-stream"
)

type Reader struct {
	fs        afs.Service
	root      string
	latency   time.Duration
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	tracer trace.Tracer
}

// New creates a Reader for message files stored under root.
//
// root is anything afs understands: a local path, file://, mem://, etc.
// latency is slept before every read to simulate a slow backing store.
func New(
	fs afs.Service,
	root string,
	latency time.Duration,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *Reader {
	return &Reader{
		fs:        fs,
		root:      root,
		latency:   latency,
		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		tracer: otel.Tracer("msgstore/messagereader"),
	}
}

func (r *Reader) messageURL(key domain.MessageKey) string {
	return url.Join(r.root, key.Folder, key.Name)
}

func (r *Reader) ReadMessage(ctx context.Context, key domain.MessageKey) (domain.Message, error) {
	ctx, span := r.tracer.Start(ctx, "Reader.ReadMessage", trace.WithAttributes(
		attribute.String("folder", key.Folder),
		attribute.String("name", key.Name),
	))
	defer span.End()

	if err := validateKey(key); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrReadFailed, err)
	}

	start := r.nowFunc()

	if r.latency > 0 {
		select {
		case <-r.afterFunc(r.latency):
		case <-ctx.Done():
			return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrReadFailed, ctx.Err())
		}
	}

	messageURL := r.messageURL(key)

	exists, err := r.fs.Exists(ctx, messageURL)
	if err != nil {
		err := fmt.Errorf("%w: failed to stat message: %w", domain.ErrReadFailed, err)
		reporting.Report(ctx, err, map[string]string{"url": messageURL})
		return domain.Message{}, err
	}
	if !exists {
		return domain.Message{}, notFound(key)
	}

	data, err := r.fs.DownloadWithURL(ctx, messageURL)
	if err != nil {
		if r.removedDuringRead(ctx, messageURL, err) {
			return domain.Message{}, notFound(key)
		}
		err := fmt.Errorf("%w: failed to download message: %w", domain.ErrReadFailed, err)
		reporting.Report(ctx, err, map[string]string{"url": messageURL})
		return domain.Message{}, err
	}

	message := domain.Message{
		ContentType: sniffContentType(data),
		Length:      len(data),
		Elapsed:     r.nowFunc().Sub(start),
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"Read message",
		"contentType", message.ContentType,
		"length", message.Length,
		"elapsed", message.Elapsed,
	)

	return message, nil
}

// Missing messages are passed through without being reported
func notFound(key domain.MessageKey) error {
	return fmt.Errorf("%w: %w: %s", domain.ErrReadFailed, domain.ErrMessageNotFound, key)
}

// removedDuringRead reports whether a failed download was caused by the
// message being removed after it was found to exist
func (r *Reader) removedDuringRead(ctx context.Context, messageURL string, downloadErr error) bool {
	if errors.Is(downloadErr, fs.ErrNotExist) {
		return true
	}

	exists, err := r.fs.Exists(ctx, messageURL)
	return err == nil && !exists
}

// ListMessages returns the names of the regular files in folder, sorted
func (r *Reader) ListMessages(ctx context.Context, folder string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "Reader.ListMessages", trace.WithAttributes(
		attribute.String("folder", folder),
	))
	defer span.End()

	if err := strutils.ValidatePathSegment(folder); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidKey, err)
	}

	objects, err := r.fs.List(ctx, url.Join(r.root, folder))
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folder, err)
	}

	names := make([]string, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		names = append(names, object.Name())
	}
	slices.Sort(names)

	return names, nil
}

func validateKey(key domain.MessageKey) error {
	if err := strutils.ValidatePathSegment(key.Folder); err != nil {
		return fmt.Errorf("%w: folder: %w", domain.ErrInvalidKey, err)
	}
	if err := strutils.ValidatePathSegment(key.Name); err != nil {
		return fmt.Errorf("%w: name: %w", domain.ErrInvalidKey, err)
	}
	return nil
}

func sniffContentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}

	if utf8.Valid(data) {
		return textContentType
	}

	return binaryContentType
}
