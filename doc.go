// Package memcli provides a single-shot memcached text protocol client.
//
// It turns command tokens into protocol requests, sends each one over its own
// TCP connection and parses the reply into a human readable result. The
// following commands are supported, one key at a time:
// - set/add/replace/append/prepend
// - get/gets/gat/gats
//
// Replies are framed by the protocol: a storage reply is one line, a retrieval
// reply ends with END\r\n or a single line such as NOT_FOUND\r\n. The read
// timeout only ends a read the framing could not.
package memcli
