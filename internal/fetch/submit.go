// Package fetch submits a single download request through a retrieval
// capability and stores the result at a local path.
package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rtm0/era5cds/internal/era5"
)

// Retriever performs the remote half of a download: it hands the request to
// the service and returns the prepared dataset as a stream.
type Retriever interface {
	Retrieve(ctx context.Context, collection string, req era5.Request) (io.ReadCloser, error)
}

// Submitter stores datasets obtained from a Retriever.
type Submitter struct {
	logger    *slog.Logger
	retriever Retriever
}

// NewSubmitter creates a submitter that retrieves through r.
func NewSubmitter(logger *slog.Logger, r Retriever) *Submitter {
	return &Submitter{logger: logger, retriever: r}
}

// Submit retrieves req from the collection and writes the dataset to dest.
// The retriever is called exactly once. Failures are reported as
// *RemoteServiceError or *LocalIOError; dest is only created once the whole
// dataset has been written.
func (s *Submitter) Submit(ctx context.Context, collection string, req era5.Request, dest string) error {
	logger := s.logger.With("submission", uuid.NewString(), "collection", collection)
	start := time.Now()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return &LocalIOError{Op: "create", Path: dest, Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Could not remove partial file", "path", tmp.Name(), "err", err)
		}
	}()

	logger.Info("Submitting request", "variables", len(req.Variables), "dest", dest)
	body, err := s.retriever.Retrieve(ctx, collection, req.Clone())
	if err != nil {
		return &RemoteServiceError{Collection: collection, Err: err}
	}
	defer body.Close()

	n, err := io.Copy(tmp, &remoteReader{r: body})
	if err != nil {
		var re *remoteReadError
		if errors.As(err, &re) {
			return &RemoteServiceError{Collection: collection, Err: re.err}
		}
		return &LocalIOError{Op: "write", Path: dest, Err: err}
	}
	// CreateTemp makes the file private; the dataset is not.
	if err := tmp.Chmod(0o644); err != nil {
		return &LocalIOError{Op: "chmod", Path: dest, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &LocalIOError{Op: "sync", Path: dest, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &LocalIOError{Op: "close", Path: dest, Err: err}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return &LocalIOError{Op: "rename", Path: dest, Err: err}
	}
	committed = true

	logger.Info("Dataset saved", "path", dest, "bytes", n, "in", time.Since(start).Round(time.Second))
	return nil
}

// remoteReader marks read errors so that they can be told apart from write
// errors once io.Copy returns.
type remoteReader struct {
	r io.Reader
}

type remoteReadError struct {
	err error
}

func (e *remoteReadError) Error() string { return e.err.Error() }

func (e *remoteReadError) Unwrap() error { return e.err }

func (r *remoteReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = &remoteReadError{err: err}
	}
	return n, err
}
