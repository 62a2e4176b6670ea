// Package transport moves encoded JSON-RPC frames between a session and a
// provider.
//
// A Stream is one established, boundary-preserving connection. A Dialer
// establishes streams. A Channel owns at most one stream at a time and turns
// it into the Open / Send / Frames / Close contract used by the client
// session; re-opening a Channel after the peer is lost is how a session
// reconnects.
//
// Byte-oriented streams such as a child process's stdio are framed one
// message per line by NewLineStream. Message-oriented streams such as
// websockets map one message to one frame (see the websocket subpackage).
package transport
