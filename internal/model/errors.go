package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested recording/transcript does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the operation clashes with the recording's current
	// state, e.g. reprocess requested while the pipeline is still active.
	ErrConflict = errors.New("conflict with current state")

	// ErrValidation covers rejected input: unsupported media type, missing
	// metadata, bad chunking options.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedMedia means the input has no decodable audio stream.
	ErrUnsupportedMedia = errors.New("no decodable audio stream")

	// ErrPayloadTooLarge means the audio exceeds the transcription ceiling.
	ErrPayloadTooLarge = errors.New("audio exceeds transcription size limit")

	// ErrIO means a media file is missing or came out empty.
	ErrIO = errors.New("media file missing or empty")
)

// TransientError marks a failure worth retrying: rate limits, network blips,
// upstream 5xx. Retry policies treat everything else as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StageError records which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
