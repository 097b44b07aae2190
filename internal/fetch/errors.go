package fetch

import "fmt"

// RemoteServiceError reports that the service rejected or could not fulfil a
// request, or that the exchange with it failed.
type RemoteServiceError struct {
	Collection string
	Err        error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("retrieving from %q: %v", e.Collection, e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// LocalIOError reports that the destination file could not be created or
// written.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}
