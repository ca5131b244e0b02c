package memcli

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

var (
	_SpaceByte    = byte(' ')
	_CRLFBytes    = []byte("\r\n")
	_NoReplyBytes = []byte("noreply")
	_QuitCRLF     = []byte("quit\r\n")

	_ValueBytes       = []byte("VALUE")
	_EndCRLFBytes     = []byte("END\r\n")
	_NotFoundCRLF     = []byte("NOT_FOUND\r\n")
	_ErrorCRLFBytes   = []byte("ERROR\r\n")
	_ClientErrorBytes = []byte("CLIENT_ERROR")
	_ServerErrorBytes = []byte("SERVER_ERROR")
)

// Category groups verbs by the shape of their request and reply.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryStorage
	CategoryRetrieval
)

func (c Category) String() string {
	switch c {
	case CategoryStorage:
		return "storage"
	case CategoryRetrieval:
		return "retrieval"
	}

	return "unknown"
}

// Verb is a memcached text protocol command name supported by memcli.
type Verb string

const (
	VerbSet     Verb = "set"
	VerbAdd     Verb = "add"
	VerbReplace Verb = "replace"
	VerbAppend  Verb = "append"
	VerbPrepend Verb = "prepend"

	VerbGet  Verb = "get"
	VerbGets Verb = "gets"
	VerbGat  Verb = "gat"
	VerbGats Verb = "gats"
)

type verbDef struct {
	verb     Verb
	category Category
	// minTokens counts the verb itself.
	minTokens int
	usage     string
}

// verbTable is the single source of truth for classification and parsing.
var verbTable = []verbDef{
	{verb: VerbSet, category: CategoryStorage, minTokens: 3, usage: "<command> <key> <value>"},
	{verb: VerbAdd, category: CategoryStorage, minTokens: 3, usage: "<command> <key> <value>"},
	{verb: VerbReplace, category: CategoryStorage, minTokens: 3, usage: "<command> <key> <value>"},
	{verb: VerbAppend, category: CategoryStorage, minTokens: 3, usage: "<command> <key> <value>"},
	{verb: VerbPrepend, category: CategoryStorage, minTokens: 3, usage: "<command> <key> <value>"},
	{verb: VerbGet, category: CategoryRetrieval, minTokens: 2, usage: "<command> <key>"},
	{verb: VerbGets, category: CategoryRetrieval, minTokens: 2, usage: "<command> <key>"},
	{verb: VerbGat, category: CategoryRetrieval, minTokens: 2, usage: "<command> <key>"},
	{verb: VerbGats, category: CategoryRetrieval, minTokens: 2, usage: "<command> <key>"},
}

func lookupVerb(name string) (verbDef, bool) {
	return lo.Find(verbTable, func(def verbDef) bool {
		return string(def.verb) == name
	})
}

// LookupVerb reports the verb and its category for the given command name.
// Matching is exact, memcached verbs are lower case.
func LookupVerb(name string) (Verb, Category, bool) {
	def, ok := lookupVerb(name)
	if !ok {
		return "", CategoryUnknown, false
	}

	return def.verb, def.category, true
}

// Verbs lists the verbs of the given category in table order.
func Verbs(category Category) []Verb {
	return lo.FilterMap(verbTable, func(def verbDef, _ int) (Verb, bool) {
		return def.verb, def.category == category
	})
}

// forecastCommonFaultLine reports the memcached error line carried by line,
// or nil if line is not one of:
//
// ERROR\r\n
// CLIENT_ERROR <message>\r\n
// SERVER_ERROR <message>\r\n
func forecastCommonFaultLine(line []byte) error {
	switch {
	case bytes.Equal(line, _ErrorCRLFBytes):
		return ErrNonexistentCommand
	case bytes.HasPrefix(line, _ClientErrorBytes):
		message := string(bytes.TrimSpace(trimCRLF(line[len(_ClientErrorBytes):])))
		return errors.Wrap(ErrClientError, message)
	case bytes.HasPrefix(line, _ServerErrorBytes):
		message := string(bytes.TrimSpace(trimCRLF(line[len(_ServerErrorBytes):])))
		return errors.Wrap(ErrServerError, message)
	}

	return nil
}

// protocolBuilder assembles a request line by line. Tokens of a line are
// separated by a single space and AddCRLF ends the line:
//
//	newProtocolBuilder().
//		AddString("set").AddString("key").AddUint(0).AddUint(0).AddUint(5).AddCRLF().
//		AddString("value").build()
//
// set key 0 0 5\r\n
// value\r\n
type protocolBuilder struct {
	buf bytes.Buffer
	// inLine is set once the current line has a token.
	inLine bool
}

func newProtocolBuilder() *protocolBuilder {
	return &protocolBuilder{
		buf: bytes.Buffer{},
	}
}

func (b *protocolBuilder) separate() {
	if b.inLine {
		b.buf.WriteByte(_SpaceByte)
	}
	b.inLine = true
}

func (b *protocolBuilder) AddString(s string) *protocolBuilder {
	b.separate()
	b.buf.WriteString(s)
	return b
}

func (b *protocolBuilder) AddBytes(bs []byte) *protocolBuilder {
	b.separate()
	b.buf.Write(bs)
	return b
}

func (b *protocolBuilder) AddUint(i uint64) *protocolBuilder {
	b.separate()
	b.buf.WriteString(strconv.FormatUint(i, 10))
	return b
}

func (b *protocolBuilder) AddCRLF() *protocolBuilder {
	b.buf.Write(_CRLFBytes)
	b.inLine = false
	return b
}

// build terminates an unfinished line and returns the message.
func (b *protocolBuilder) build() []byte {
	if b.inLine {
		b.AddCRLF()
	}

	return b.buf.Bytes()
}

func trimCRLF(line []byte) []byte {
	return bytes.TrimSuffix(line, _CRLFBytes)
}

// request is a serialized command waiting to be sent.
type request struct {
	raw []byte
}

func (req *request) send(rr memcachedConn, writeTimeout time.Duration) error {
	if writeTimeout > 0 {
		if err := rr.setWriteDeadline(nowFunc().Add(writeTimeout)); err != nil {
			return errors.Wrapf(ErrWriteFailed, "set write deadline: %v", err)
		}
	}

	if _, err := rr.Write(req.raw); err != nil {
		return errors.Wrapf(ErrWriteFailed, "%v", err)
	}

	if err := rr.flush(); err != nil {
		return errors.Wrapf(ErrFlushFailed, "%v", err)
	}

	return nil
}

type responseEndIndicator uint8

const (
	// endIndicatorNoReply indicates the response is no reply
	// and the client should not wait for the response.
	endIndicatorNoReply responseEndIndicator = iota
	// endIndicatorLimitedLines indicates the response is limited lines,
	// the client should read line from response with limited lines with delimiter '\n'.
	endIndicatorLimitedLines
	// endIndicatorSpecificEndLine indicates the response is specific end line,
	// the client should read lines from response until the specific end line
	// or a single line reply which can not be followed by anything else.
	endIndicatorSpecificEndLine
)

// response collects the raw reply of one request from the connection.
//
// An EOF or an expired read deadline ends the collection without error: the
// framing rules decide when a reply is complete, the deadline only keeps a
// misbehaving server from blocking the client forever.
type response struct {
	endIndicator responseEndIndicator
	// limitedLines is the number of lines to read from the connection.
	limitedLines uint8
	// specEndLine is the specific end line of the response.
	specEndLine []byte

	// rawLines is the raw bytes of the response, it has been divided by '\n'.
	// .e.g. "VALUE key 0 5\r\nvalue\r\nEND\r\n" will be divided into
	// ["VALUE key 0 5\r\n", "value\r\n", "END\r\n"].
	rawLines [][]byte
}

func buildNoReplyResponse() *response {
	return &response{
		endIndicator: endIndicatorNoReply,
	}
}

func buildLimitedLineResponse(lines uint8) *response {
	return &response{
		endIndicator: endIndicatorLimitedLines,
		limitedLines: lines,
		rawLines:     make([][]byte, 0, lines),
	}
}

func buildSpecEndLineResponse(endLine []byte, predictLines int) *response {
	if predictLines <= 0 {
		predictLines = 8
	}

	return &response{
		endIndicator: endIndicatorSpecificEndLine,
		specEndLine:  endLine,
		rawLines:     make([][]byte, 0, predictLines),
	}
}

func (resp *response) recv(rr memcachedConn, readTimeout time.Duration) error {
	switch resp.endIndicator {
	case endIndicatorNoReply:
		return nil
	case endIndicatorLimitedLines:
		return resp.read1(rr, readTimeout)
	case endIndicatorSpecificEndLine:
		return resp.read2(rr, readTimeout)
	}

	return ErrUnknownIndicator
}

// read1 reads the response from the connection with limited lines.
func (resp *response) read1(rr memcachedConn, readTimeout time.Duration) error {
	for read := 0; read < int(resp.limitedLines); read++ {
		_, done, err := resp.readLine(rr, readTimeout)
		if err != nil || done {
			return err
		}
	}

	return nil
}

// read2 reads the response from the connection with specific end line. The
// data block following a VALUE header is read by its declared length, so a
// data line equal to the end line does not end the reply early.
func (resp *response) read2(rr memcachedConn, readTimeout time.Duration) error {
	for {
		line, done, err := resp.readLine(rr, readTimeout)
		if err != nil || done {
			return err
		}

		if bytes.Equal(line, resp.specEndLine) {
			return nil
		}
		if len(resp.rawLines) != 1 {
			continue
		}
		if isSingleLineReply(line) {
			return nil
		}

		if size, ok := valueBlockSize(line); ok {
			done, err = resp.readBlock(rr, size, readTimeout)
			if err != nil || done {
				return err
			}
		}
	}
}

// valueBlockSize returns the length of the data block announced by a VALUE
// header line, CRLF included.
func valueBlockSize(line []byte) (int64, bool) {
	if !bytes.HasPrefix(line, _ValueBytes) {
		return 0, false
	}

	header, ok := parseValueHeader(string(trimCRLF(line)))
	if !ok {
		return 0, false
	}

	return int64(header.Bytes) + int64(len(_CRLFBytes)), true
}

// readBlock reads exactly size bytes and appends them to rawLines. A server
// which sends less than it announced is handled like a short line: the line
// loop takes over from wherever the block ended.
func (resp *response) readBlock(rr memcachedConn, size int64, readTimeout time.Duration) (done bool, err error) {
	if readTimeout > 0 {
		if err = rr.setReadDeadline(nowFunc().Add(readTimeout)); err != nil {
			return true, errors.Wrapf(ErrReadFailed, "set read deadline: %v", err)
		}
	}

	block, err := rr.readFull(size)
	if len(block) > 0 {
		resp.rawLines = append(resp.rawLines, block)
	}

	return resp.readDone(err)
}

// readLine reads one '\n' terminated line and appends it to rawLines. done is
// true when the connection has nothing more to offer.
func (resp *response) readLine(rr memcachedConn, readTimeout time.Duration) (line []byte, done bool, err error) {
	if readTimeout > 0 {
		if err = rr.setReadDeadline(nowFunc().Add(readTimeout)); err != nil {
			return nil, true, errors.Wrapf(ErrReadFailed, "set read deadline: %v", err)
		}
	}

	line, err = rr.readLine('\n')
	if len(line) > 0 {
		resp.rawLines = append(resp.rawLines, line)
	}

	done, err = resp.readDone(err)
	return line, done, err
}

// readDone treats EOF and an expired deadline as the end of the reply.
func (resp *response) readDone(err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, os.ErrDeadlineExceeded):
		return true, nil
	}

	return true, errors.Wrapf(ErrReadFailed, "%v", err)
}

func (resp *response) bytes() []byte {
	return bytes.Join(resp.rawLines, nil)
}

func isSingleLineReply(line []byte) bool {
	return bytes.Equal(line, _NotFoundCRLF) ||
		bytes.Equal(line, _EndCRLFBytes) ||
		forecastCommonFaultLine(line) != nil
}

// roundTrip sends req and collects the reply described by resp, returning it
// as text.
func roundTrip(rr memcachedConn, req *request, resp *response, readTimeout, writeTimeout time.Duration) (string, error) {
	if err := req.send(rr, writeTimeout); err != nil {
		return "", err
	}

	if err := resp.recv(rr, readTimeout); err != nil {
		return "", err
	}

	raw := resp.bytes()
	if !utf8.Valid(raw) {
		return "", errors.Wrapf(ErrDecodeFailed, "%d bytes received", len(raw))
	}

	return string(raw), nil
}
