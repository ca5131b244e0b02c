package memcli

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Reply is a parsed server reply which renders as a human readable message.
type Reply interface {
	Message() string
}

var (
	_ Reply = (*StorageResponse)(nil)
	_ Reply = (*RetrievalResponse)(nil)
)

const (
	msgStored         = "storage successful"
	msgNotStored      = "data was not stored"
	msgExists         = "item that you attempted to fetch has been modified"
	msgNotFound       = "item that you are trying to store does not exist"
	msgNoReply        = "request sent, reply suppressed by noreply"
	msgValueNotFound  = "value not found for provided key"
	msgValueRetrieved = "data returned successfully"

	// maxQuotedReply bounds how much of an unparsable reply ends up in the error.
	maxQuotedReply = 256
)

// StorageStatus is the server's answer to a storage command.
type StorageStatus string

const (
	StatusStored    StorageStatus = "STORED"
	StatusNotStored StorageStatus = "NOT_STORED"
	StatusExists    StorageStatus = "EXISTS"
	StatusNotFound  StorageStatus = "NOT_FOUND"
	// StatusNoReply means the command carried noreply and no answer was read.
	StatusNoReply StorageStatus = ""
)

var storageReplies = map[string]*StorageResponse{
	"STORED\r\n":     {status: StatusStored, message: msgStored},
	"NOT_STORED\r\n": {status: StatusNotStored, message: msgNotStored},
	"EXISTS\r\n":     {status: StatusExists, message: msgExists},
	"NOT_FOUND\r\n":  {status: StatusNotFound, message: msgNotFound},
}

// StorageResponse is the parsed reply of a storage command.
type StorageResponse struct {
	status  StorageStatus
	message string
}

// ParseStorageResponse matches the whole raw reply against the storage reply
// lines.
func ParseStorageResponse(raw string) (*StorageResponse, error) {
	resp, ok := storageReplies[raw]
	if !ok {
		return nil, newUnparsableError(raw)
	}

	return &StorageResponse{status: resp.status, message: resp.message}, nil
}

func newNoReplyStorageResponse() *StorageResponse {
	return &StorageResponse{status: StatusNoReply, message: msgNoReply}
}

func (r *StorageResponse) Status() StorageStatus { return r.status }
func (r *StorageResponse) Message() string       { return r.message }

// ValueHeader is the `VALUE <key> <flags> <bytes> [<cas unique>]` line of a
// retrieval reply.
type ValueHeader struct {
	Key   string
	Flags uint32
	Bytes uint32
	// CAS is only sent in reply to gets/gats.
	CAS    uint64
	HasCAS bool
}

// parseValueHeader returns false for a header it can not read. A retrieval
// reply does not depend on it, the data lines are kept either way.
func parseValueHeader(line string) (ValueHeader, bool) {
	const (
		keyIndex     = 1
		flagsIndex   = 2
		dataLenIndex = 3
		casIndex     = 4

		withoutCasLen = 4
		withCasLen    = 5
	)

	parts := strings.Fields(line)
	if len(parts) != withoutCasLen && len(parts) != withCasLen {
		return ValueHeader{}, false
	}

	flags, err := strconv.ParseUint(parts[flagsIndex], 10, 32)
	if err != nil {
		return ValueHeader{}, false
	}
	dataLen, err := strconv.ParseUint(parts[dataLenIndex], 10, 32)
	if err != nil {
		return ValueHeader{}, false
	}

	header := ValueHeader{
		Key:   parts[keyIndex],
		Flags: uint32(flags),
		Bytes: uint32(dataLen),
	}
	if len(parts) == withCasLen {
		header.CAS, err = strconv.ParseUint(parts[casIndex], 10, 64)
		if err != nil {
			return ValueHeader{}, false
		}
		header.HasCAS = true
	}

	return header, true
}

// RetrievalResponse is the parsed reply of a retrieval command.
type RetrievalResponse struct {
	found     bool
	header    ValueHeader
	hasHeader bool
	data      []string
	message   string
}

// ParseRetrievalResponse parses a NOT_FOUND reply or a single VALUE block:
//
// VALUE <key> <flags> <bytes>\r\n
// <data line>\r\n
// ...
// END\r\n
//
// Every line between the header and the trailing empty element is captured
// verbatim, except the END sentinel. An END line is only the sentinel once
// the data block announced by the header is complete. A bare END\r\n, which
// is what memcached sends for a miss, counts as not found.
func ParseRetrievalResponse(raw string) (*RetrievalResponse, error) {
	if raw == string(_NotFoundCRLF) || raw == string(_EndCRLFBytes) {
		return &RetrievalResponse{message: msgValueNotFound}, nil
	}
	if !strings.HasPrefix(raw, string(_ValueBytes)) {
		return nil, newUnparsableError(raw)
	}

	lines := strings.Split(raw, string(_CRLFBytes))
	data := make([]string, 0, len(lines))
	if len(lines) > 2 {
		data = append(data, lines[1:len(lines)-1]...)
	}
	header, ok := parseValueHeader(lines[0])
	if n := len(data); n > 0 && data[n-1] == "END" && (!ok || blockComplete(data[:n-1], header.Bytes)) {
		data = data[:n-1]
	}

	return &RetrievalResponse{
		found:     true,
		header:    header,
		hasHeader: ok,
		data:      data,
		message:   msgValueRetrieved,
	}, nil
}

// blockComplete reports whether lines already hold the announced number of
// bytes, so that a following END line is the sentinel and not data.
func blockComplete(lines []string, size uint32) bool {
	return len(strings.Join(lines, string(_CRLFBytes))) >= int(size)
}

func (r *RetrievalResponse) Found() bool     { return r.found }
func (r *RetrievalResponse) Message() string { return r.message }

// Data returns a copy of the captured data lines, nil when nothing was found.
func (r *RetrievalResponse) Data() []string {
	if !r.found {
		return nil
	}

	return append([]string{}, r.data...)
}

// Header returns the VALUE header when the server sent a well-formed one.
func (r *RetrievalResponse) Header() (ValueHeader, bool) {
	return r.header, r.hasHeader
}

// unparsableError is an ErrUnparsableResponse which may also carry the
// memcached fault (ERROR, CLIENT_ERROR, SERVER_ERROR) the reply stood for.
type unparsableError struct {
	raw   string
	fault error
}

func newUnparsableError(raw string) error {
	firstLine := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i+1]
	}

	return &unparsableError{
		raw:   raw,
		fault: forecastCommonFaultLine([]byte(firstLine)),
	}
}

func (e *unparsableError) Error() string {
	if e.fault != nil {
		return ErrUnparsableResponse.Error() + ": " + e.fault.Error()
	}

	quoted := e.raw
	if len(quoted) > maxQuotedReply {
		quoted = quoted[:maxQuotedReply] + "..."
	}
	return ErrUnparsableResponse.Error() + ": " + strconv.Quote(quoted)
}

func (e *unparsableError) Is(target error) bool {
	return target == ErrUnparsableResponse
}

func (e *unparsableError) Unwrap() error {
	return e.fault
}

// Cause makes errors.Cause report the fault when there is one.
func (e *unparsableError) Cause() error {
	if e.fault != nil {
		return errors.Cause(e.fault)
	}

	return ErrUnparsableResponse
}
