package protocol

// This package implements the parsing and serialising of the ASCII frames
// that Compound Pi clients and servers exchange over UDP.
//
// - `Command` - a client instruction sent to a server.
// - `Response` - a server's reply to a command, either OK (optionally with
//                data) or ERROR (with a message).
//
// === General syntax
//
// Command frames are a single LF-terminated line:
//
//   <seq> <VERB> [args...]
//
// Response frames are a header line followed, for OK, by zero or more data
// lines:
//
//   <seq> OK
//   <data line>
//   <data line>
//
// or, for a failed command:
//
//   <seq> ERROR
//   <message>
//
// `seq` is a positive integer; 0 is reserved and never appears on the wire.
// It increases monotonically per client session except for ACK (which
// reuses the response's seq) and HELLO (which sets a new base).
//
// === ACK
//
// ACK carries no arguments and has no response of its own; it terminates a
// server's retry of the response whose seq it names.
//
// See command.go for the full verb table.
