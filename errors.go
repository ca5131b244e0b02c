package memcli

import (
	"github.com/pkg/errors"
)

var (
	// command model
	ErrInsufficientArguments = errors.New("insufficient arguments")
	ErrUnknownCommand        = errors.New("unknown command")
	ErrUnexpectedArgument    = errors.New("unexpected argument")
	ErrCommandNotFound       = errors.New("command does not exist")
	ErrInvalidKey            = errors.New("invalid key")

	// transport
	ErrConnectFailed = errors.New("failed to connect to memcached service")
	ErrWriteFailed   = errors.New("unable to write to stream")
	ErrFlushFailed   = errors.New("buffer stream was unable to flush")
	ErrReadFailed    = errors.New("failed to read return value from stream")
	ErrDecodeFailed  = errors.New("failed to convert stream from utf8")

	// response model
	ErrUnparsableResponse = errors.New("server did not return a parsable response")
	ErrNonexistentCommand = errors.New("nonexistent command")
	ErrClientError        = errors.New("client error")
	ErrServerError        = errors.New("server error")

	ErrUnknownIndicator = errors.New("unknown indicator")
)
