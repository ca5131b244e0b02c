package memcli

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// maxKeyLength is the longest key memcached accepts.
const maxKeyLength = 250

// Command is a validated request which knows how to put itself on the wire
// and how to read the server's answer to it.
type Command interface {
	Verb() Verb
	Category() Category
	Key() string
	// Serialize returns the exact bytes sent to the server.
	Serialize() []byte

	request() *request
	expectation() *response
	parseReply(raw string) (Reply, error)
}

var (
	_ Command = (*StorageCommand)(nil)
	_ Command = (*RetrievalCommand)(nil)
)

func arity(category Category) int {
	def, _ := lo.Find(verbTable, func(def verbDef) bool {
		return def.category == category
	})

	return def.minTokens
}

func usage(category Category) string {
	def, _ := lo.Find(verbTable, func(def verbDef) bool {
		return def.category == category
	})

	return def.usage
}

func validateKey(key string) error {
	if key == "" {
		return errors.Wrap(ErrInvalidKey, "empty key")
	}
	if len(key) > maxKeyLength {
		return errors.Wrapf(ErrInvalidKey, "key is longer than %d bytes", maxKeyLength)
	}
	if strings.IndexFunc(key, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return errors.Wrapf(ErrInvalidKey, "%q contains whitespace or control characters", key)
	}

	return nil
}

// parseVerb checks the token count first, then that the first token is a
// verb of the wanted category.
func parseVerb(tokens []string, category Category) (Verb, error) {
	if len(tokens) < arity(category) {
		return "", errors.Wrapf(ErrInsufficientArguments, "not enough arguments provided: %s", usage(category))
	}

	def, ok := lookupVerb(tokens[0])
	if !ok || def.category != category {
		return "", errors.Wrap(ErrUnknownCommand, tokens[0])
	}

	return def.verb, nil
}

// rejectArguments fails on the first token of between. No options are
// recognized between the key and the value.
func rejectArguments(between []string) error {
	if len(between) == 0 {
		return nil
	}

	return errors.Wrap(ErrUnexpectedArgument, between[0])
}

// StorageCommand represents one of set/add/replace/append/prepend:
//
// <command name> <key> <flags> <exptime> <bytes> [noreply]\r\n
// <data block>\r\n
type StorageCommand struct {
	verb      Verb
	key       string
	flags     uint16
	exptime   uint32
	byteCount uint32
	noReply   bool
	data      string
}

// StorageOption customizes a StorageCommand built by NewStorageCommand.
type StorageOption func(*StorageCommand)

// WithFlags sets the opaque client flags stored alongside the value.
func WithFlags(flags uint16) StorageOption {
	return func(c *StorageCommand) { c.flags = flags }
}

// WithExptime sets the expiration time in seconds, 0 means never expire.
func WithExptime(exptime uint32) StorageOption {
	return func(c *StorageCommand) { c.exptime = exptime }
}

// WithByteCount overrides the <bytes> field which otherwise is the length of
// the data. The server, not the client, checks it against the data block.
func WithByteCount(n uint32) StorageOption {
	return func(c *StorageCommand) { c.byteCount = n }
}

// WithNoReply asks the server not to acknowledge the command.
func WithNoReply() StorageOption {
	return func(c *StorageCommand) { c.noReply = true }
}

// NewStorageCommand builds a storage command from its fields.
func NewStorageCommand(verb Verb, key, data string, opts ...StorageOption) (*StorageCommand, error) {
	def, ok := lookupVerb(string(verb))
	if !ok || def.category != CategoryStorage {
		return nil, errors.Wrap(ErrUnknownCommand, string(verb))
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	c := &StorageCommand{
		verb:      def.verb,
		key:       key,
		byteCount: uint32(len(data)),
		data:      data,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ParseStorageCommand parses `<command> <key> <value>` tokens.
func ParseStorageCommand(tokens []string) (*StorageCommand, error) {
	verb, err := parseVerb(tokens, CategoryStorage)
	if err != nil {
		return nil, err
	}

	last := len(tokens) - 1
	if err = rejectArguments(tokens[2:last]); err != nil {
		return nil, err
	}

	return NewStorageCommand(verb, tokens[1], tokens[last])
}

func (c *StorageCommand) Verb() Verb         { return c.verb }
func (c *StorageCommand) Category() Category { return CategoryStorage }
func (c *StorageCommand) Key() string        { return c.key }
func (c *StorageCommand) Flags() uint16      { return c.flags }
func (c *StorageCommand) Exptime() uint32    { return c.exptime }
func (c *StorageCommand) ByteCount() uint32  { return c.byteCount }
func (c *StorageCommand) NoReply() bool      { return c.noReply }
func (c *StorageCommand) Data() string       { return c.data }

func (c *StorageCommand) Serialize() []byte {
	b := newProtocolBuilder().
		AddString(string(c.verb)).
		AddString(c.key).            // key
		AddUint(uint64(c.flags)).    // flags
		AddUint(uint64(c.exptime)).  // exptime
		AddUint(uint64(c.byteCount)) // bytes

	if c.noReply {
		b.AddBytes(_NoReplyBytes)
	}

	return b.AddCRLF().
		AddString(c.data). // data block
		AddCRLF().
		build()
}

func (c *StorageCommand) request() *request {
	return &request{raw: c.Serialize()}
}

func (c *StorageCommand) expectation() *response {
	if c.noReply {
		return buildNoReplyResponse()
	}

	return buildLimitedLineResponse(1)
}

func (c *StorageCommand) parseReply(raw string) (Reply, error) {
	if c.noReply {
		return newNoReplyStorageResponse(), nil
	}

	return ParseStorageResponse(raw)
}

// RetrievalCommand represents one of get/gets/gat/gats with a single key:
//
// <command name> <key>\r\n
type RetrievalCommand struct {
	verb Verb
	key  string
}

// ParseRetrievalCommand parses `<command> <key>` tokens.
func ParseRetrievalCommand(tokens []string) (*RetrievalCommand, error) {
	verb, err := parseVerb(tokens, CategoryRetrieval)
	if err != nil {
		return nil, err
	}

	// the key is the last token, a lone extra token before it is tolerated
	last := len(tokens) - 1
	if len(tokens) > 3 {
		if err = rejectArguments(tokens[1:last]); err != nil {
			return nil, err
		}
	}
	if err = validateKey(tokens[last]); err != nil {
		return nil, err
	}

	return &RetrievalCommand{
		verb: verb,
		key:  tokens[last],
	}, nil
}

func (c *RetrievalCommand) Verb() Verb         { return c.verb }
func (c *RetrievalCommand) Category() Category { return CategoryRetrieval }
func (c *RetrievalCommand) Key() string        { return c.key }

func (c *RetrievalCommand) Serialize() []byte {
	return newProtocolBuilder().
		AddString(string(c.verb)).
		AddString(c.key).
		AddCRLF().
		build()
}

func (c *RetrievalCommand) request() *request {
	return &request{raw: c.Serialize()}
}

// expectation reads up to END\r\n, a single VALUE block takes 3 lines.
func (c *RetrievalCommand) expectation() *response {
	return buildSpecEndLineResponse(_EndCRLFBytes, 3)
}

func (c *RetrievalCommand) parseReply(raw string) (Reply, error) {
	return ParseRetrievalResponse(raw)
}
