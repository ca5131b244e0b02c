package memcli

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Classify tells which kind of command the tokens start with. An empty token
// list or an unknown verb fails with ErrCommandNotFound.
func Classify(tokens []string) (Category, error) {
	if len(tokens) == 0 {
		return CategoryUnknown, errors.Wrap(ErrCommandNotFound, "no command given")
	}

	_, category, ok := LookupVerb(tokens[0])
	if !ok {
		return CategoryUnknown, errors.Wrap(ErrCommandNotFound, tokens[0])
	}

	return category, nil
}

// Parse classifies the tokens and parses them into the matching Command.
func Parse(tokens []string) (Command, error) {
	category, err := Classify(tokens)
	if err != nil {
		return nil, err
	}

	switch category {
	case CategoryStorage:
		return ParseStorageCommand(tokens)
	case CategoryRetrieval:
		return ParseRetrievalCommand(tokens)
	}

	return nil, errors.Wrap(ErrCommandNotFound, tokens[0])
}

// Client sends one command per connection to a single memcached server.
type Client struct {
	options *clientOptions
	addr    *Addr

	// newConn is replaceable in tests.
	newConn func(ctx context.Context) (memcachedConn, error)
}

// New creates a client for the memcached server at host:port. No connection
// is made until a command is executed.
func New(host string, port uint16, opts ...ClientOption) *Client {
	options := newClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		options: options,
		addr:    NewAddr(host, port),
	}
	c.newConn = func(ctx context.Context) (memcachedConn, error) {
		return newConnContext(ctx, c.addr, c.options.dialTimeout)
	}

	return c
}

// Addr returns the address of the server the client talks to.
func (c *Client) Addr() *Addr {
	return c.addr
}

// Do parses the tokens and executes the resulting command. Invalid tokens
// fail before any network I/O.
func (c *Client) Do(ctx context.Context, tokens []string) (Reply, error) {
	cmd, err := Parse(tokens)
	if err != nil {
		return nil, err
	}

	return c.Execute(ctx, cmd)
}

// Execute opens a connection, sends cmd, reads and parses the reply, then
// closes the connection. Nothing is retried.
func (c *Client) Execute(ctx context.Context, cmd Command) (Reply, error) {
	logger := c.options.logger.With(
		zap.String("verb", string(cmd.Verb())),
		zap.String("key", cmd.Key()),
		zap.String("addr", c.addr.Address),
	)

	cn, err := c.newConn(ctx)
	if err != nil {
		logger.Debug("connect failed", zap.Error(err))
		return nil, err
	}
	defer func() {
		if err := cn.Close(); err != nil {
			logger.Debug("close connection", zap.Error(err))
		}
	}()

	req, resp := cmd.request(), cmd.expectation()
	logger.Debug("send request", zap.Int("bytes", len(req.raw)))

	raw, err := roundTrip(cn, req, resp, c.options.readTimeout, c.options.writeTimeout)
	if err != nil {
		logger.Debug("round trip failed", zap.Error(err))
		return nil, err
	}
	logger.Debug("receive reply", zap.Int("lines", len(resp.rawLines)), zap.String("raw", raw))

	return cmd.parseReply(raw)
}
