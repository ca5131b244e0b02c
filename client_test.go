package memcli

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/nettest"
)

// fakeMemcached accepts a single connection, records the request and writes
// the canned reply. With hangUp the connection is closed right after the
// reply, otherwise it stays open until the client closes it.
type fakeMemcached struct {
	ln       net.Listener
	requests chan string
}

func startFakeMemcached(t *testing.T, reply string, hangUp bool) *fakeMemcached {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := &fakeMemcached{ln: ln, requests: make(chan string, 1)}
	go s.serve(reply, hangUp)
	return s
}

func (s *fakeMemcached) serve(reply string, hangUp bool) {
	cn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer cn.Close()

	rr := bufio.NewReader(cn)
	request, err := rr.ReadString('\n')
	if err != nil {
		return
	}
	if fields := strings.Fields(request); len(fields) > 0 {
		if _, category, _ := LookupVerb(fields[0]); category == CategoryStorage {
			data, _ := rr.ReadString('\n')
			request += data
		}
	}
	s.requests <- request

	_, _ = cn.Write([]byte(reply))
	if hangUp {
		return
	}
	_, _ = io.Copy(io.Discard, rr)
}

func (s *fakeMemcached) client(opts ...ClientOption) *Client {
	addr := s.ln.Addr().(*net.TCPAddr)
	opts = append([]ClientOption{WithLogger(zap.NewExample())}, opts...)
	return New(addr.IP.String(), uint16(addr.Port), opts...)
}

func (s *fakeMemcached) received(t *testing.T) string {
	t.Helper()

	select {
	case request := <-s.requests:
		return request
	case <-time.After(time.Second):
		t.Fatal("no request received")
	}

	return ""
}

func Test_Classify(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		want    Category
		wantErr error
	}{
		{name: "storage", tokens: []string{"set", "k", "v"}, want: CategoryStorage},
		{name: "prepend", tokens: []string{"prepend"}, want: CategoryStorage},
		{name: "retrieval", tokens: []string{"gats", "k"}, want: CategoryRetrieval},
		{name: "unknown", tokens: []string{"delete", "k"}, want: CategoryUnknown, wantErr: ErrCommandNotFound},
		{name: "empty", tokens: nil, want: CategoryUnknown, wantErr: ErrCommandNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.tokens)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Parse(t *testing.T) {
	cmd, err := Parse([]string{"append", "k", "v"})
	assert.NoError(t, err)
	assert.IsType(t, &StorageCommand{}, cmd)

	cmd, err = Parse([]string{"gets", "k"})
	assert.NoError(t, err)
	assert.IsType(t, &RetrievalCommand{}, cmd)

	_, err = Parse([]string{"flush_all"})
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.EqualError(t, err, "flush_all: command does not exist")
}

func Test_Client_Do_failsBeforeIO(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		wantErr error
	}{
		{name: "unknown command", tokens: []string{"incr", "k", "1"}, wantErr: ErrCommandNotFound},
		{name: "insufficient arguments", tokens: []string{"set", "k"}, wantErr: ErrInsufficientArguments},
		{name: "unexpected argument", tokens: []string{"set", "bro", "-b", "4", "same"}, wantErr: ErrUnexpectedArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("localhost", 11211)
			dialed := false
			c.newConn = func(context.Context) (memcachedConn, error) {
				dialed = true
				return newMockConn(), nil
			}

			reply, err := c.Do(context.Background(), tt.tokens)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, reply)
			assert.False(t, dialed)
		})
	}
}

func Test_Client_Do_storage(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		reply   string
		wantReq string
		wantMsg string
		wantErr error
	}{
		{
			name:    "stored",
			tokens:  []string{"set", "dog", "piss"},
			reply:   "STORED\r\n",
			wantReq: "set dog 0 0 4\r\npiss\r\n",
			wantMsg: "storage successful",
		},
		{
			name:    "not stored",
			tokens:  []string{"add", "dog", "piss"},
			reply:   "NOT_STORED\r\n",
			wantReq: "add dog 0 0 4\r\npiss\r\n",
			wantMsg: "data was not stored",
		},
		{
			name:    "server error",
			tokens:  []string{"append", "dog", "piss"},
			reply:   "SERVER_ERROR out of memory\r\n",
			wantReq: "append dog 0 0 4\r\npiss\r\n",
			wantErr: ErrServerError,
		},
		{
			name:    "garbage",
			tokens:  []string{"replace", "dog", "piss"},
			reply:   "garbage\r\n",
			wantReq: "replace dog 0 0 4\r\npiss\r\n",
			wantErr: ErrUnparsableResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startFakeMemcached(t, tt.reply, false)

			reply, err := s.client().Do(context.Background(), tt.tokens)
			assert.Equal(t, tt.wantReq, s.received(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantMsg, reply.Message())
		})
	}
}

func Test_Client_Do_retrieval(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		reply     string
		hangUp    bool
		wantReq   string
		wantFound bool
		wantData  []string
	}{
		{
			name:      "end line while the connection stays open",
			tokens:    []string{"get", "dog"},
			reply:     "VALUE dog 0 4\r\nbush\r\nEND\r\n",
			wantReq:   "get dog\r\n",
			wantFound: true,
			wantData:  []string{"bush"},
		},
		{
			name:      "server closes after the value",
			tokens:    []string{"gets", "dog"},
			reply:     "VALUE dog 0 0\r\npissing\r\non\r\nthe\r\nbush\r\n",
			hangUp:    true,
			wantReq:   "gets dog\r\n",
			wantFound: true,
			wantData:  []string{"pissing", "on", "the", "bush"},
		},
		{
			name:      "value equal to the end line",
			tokens:    []string{"get", "k"},
			reply:     "VALUE k 0 3\r\nEND\r\nEND\r\n",
			wantReq:   "get k\r\n",
			wantFound: true,
			wantData:  []string{"END"},
		},
		{
			name:    "not found",
			tokens:  []string{"gat", "dog"},
			reply:   "NOT_FOUND\r\n",
			wantReq: "gat dog\r\n",
		},
		{
			name:    "miss",
			tokens:  []string{"get", "cat"},
			reply:   "END\r\n",
			wantReq: "get cat\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startFakeMemcached(t, tt.reply, tt.hangUp)

			// framing, not the read timeout, ends these replies
			start := time.Now()
			reply, err := s.client(WithReadTimeout(5*time.Second)).Do(context.Background(), tt.tokens)
			assert.Less(t, time.Since(start), 3*time.Second)

			assert.Equal(t, tt.wantReq, s.received(t))
			assert.NoError(t, err)

			got, ok := reply.(*RetrievalResponse)
			assert.True(t, ok)
			assert.Equal(t, tt.wantFound, got.Found())
			assert.Equal(t, tt.wantData, got.Data())
		})
	}
}

func Test_Client_Do_readTimeoutEndsUnframedReply(t *testing.T) {
	s := startFakeMemcached(t, "VALUE dog 0 0\r\npissing\r\non\r\n", false)

	reply, err := s.client(WithReadTimeout(50*time.Millisecond)).Do(context.Background(), []string{"get", "dog"})
	assert.NoError(t, err)
	assert.Equal(t, "get dog\r\n", s.received(t))
	assert.Equal(t, []string{"pissing", "on"}, reply.(*RetrievalResponse).Data())
}

func Test_Client_Execute_noReply(t *testing.T) {
	s := startFakeMemcached(t, "", false)

	cmd, err := NewStorageCommand(VerbSet, "k", "v", WithNoReply())
	assert.NoError(t, err)

	reply, err := s.client().Execute(context.Background(), cmd)
	assert.NoError(t, err)
	assert.Equal(t, "set k 0 0 1 noreply\r\nv\r\n", s.received(t))
	assert.Equal(t, StatusNoReply, reply.(*StorageResponse).Status())
}

func Test_Client_Execute_connectFailed(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	reply, err := New(addr.IP.String(), uint16(addr.Port), WithDialTimeout(time.Second)).
		Do(context.Background(), []string{"get", "dog"})
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Nil(t, reply)
}

func Test_Client_Execute_closesConnection(t *testing.T) {
	cn := newMockConn("STORED\r\n")
	c := New("localhost", 11211)
	c.newConn = func(context.Context) (memcachedConn, error) { return cn, nil }

	reply, err := c.Do(context.Background(), []string{"set", "dog", "piss"})
	assert.NoError(t, err)
	assert.Equal(t, "storage successful", reply.Message())
	assert.Equal(t, "set dog 0 0 4\r\npiss\r\n", string(cn.written))
	assert.True(t, cn.closed)
}

func Test_NewAddr(t *testing.T) {
	assert.Equal(t, "localhost:11211", NewAddr("localhost", 11211).Address)
	assert.Equal(t, "[::1]:11211", NewAddr("::1", 11211).Address)
	assert.Equal(t, "tcp://127.0.0.1:1", NewAddr("127.0.0.1", 1).String())
	assert.Equal(t, "cache.local:11212", New("cache.local", 11212).Addr().Address)
}
