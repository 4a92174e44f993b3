package traceio

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/errors"
	"github.com/traceflow/traceflow/pkg/storage/s3"
)

// Options controls trace loading.
type Options struct {
	// Progress renders a byte progress bar to stderr while reading.
	Progress bool

	// S3 supplies the client used for s3:// paths. Required only when
	// such a path is given.
	S3 *s3.Client
}

// Load reads a trace from a local file or an s3://bucket/key URI,
// decompressing .gz transparently.
func Load(ctx context.Context, path string, opts Options) (*model.Trace, error) {
	r, size, cleanup, err := open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if opts.Progress {
		bar := progressbar.DefaultBytes(size, "loading "+path)
		r = io.TeeReader(r, bar)
	}

	return ReadTrace(r)
}

// Save writes a trace to a local file. Annotations persisted by the
// pipeline travel with it.
func Save(path string, trace *model.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot create output file").
			WithContext("path", path)
	}
	defer f.Close()

	var w io.Writer = f
	if isGzip(path) {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	return WriteTrace(w, trace)
}

func open(ctx context.Context, path string, opts Options) (io.Reader, int64, func() error, error) {
	if s3.IsURI(path) {
		if opts.S3 == nil {
			return nil, 0, nil, errors.New(errors.CodeInvalidFormat, "s3 path given without s3 configuration").
				WithContext("path", path)
		}
		bucket, key, err := s3.ParseURI(path)
		if err != nil {
			return nil, 0, nil, errors.Wrap(err, errors.CodeInvalidFormat, "bad s3 uri")
		}
		body, size, err := opts.S3.Reader(ctx, bucket, key)
		if err != nil {
			return nil, 0, nil, errors.Wrap(err, errors.CodeFileNotFound, "cannot fetch trace from s3")
		}
		return wrapGzip(body, key, size, body.Close)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil, errors.FileNotFound(path)
		}
		return nil, 0, nil, errors.Wrap(err, errors.CodeFilePermission, "cannot open trace file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, errors.Wrap(err, errors.CodeFilePermission, "cannot stat trace file")
	}
	return wrapGzip(f, path, info.Size(), f.Close)
}

func wrapGzip(r io.Reader, path string, size int64, close func() error) (io.Reader, int64, func() error, error) {
	if !isGzip(path) {
		return r, size, close, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		close()
		return nil, 0, nil, errors.Wrap(err, errors.CodeEncodingError, "cannot decompress trace")
	}
	return gz, size, func() error {
		gz.Close()
		return close()
	}, nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}
