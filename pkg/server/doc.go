/*
Package server implements the TCP accept loop and per-connection plumbing.

Each accepted connection is split into a read side and a write side. The
read side runs a decode loop feeding the connection's command inbox; the
write side is handed to a freshly spawned subscription manager, which is the
only goroutine allowed to write frames. A blocked write therefore never
stops command intake, and a decode error is framed back as a ProtocolError
before the connection closes.

Errors are confined per connection: a misbehaving client takes down its own
connection task and nothing else. Topics live in the shared registry and
survive every disconnect.
*/
package server
