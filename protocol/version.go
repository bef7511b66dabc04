package protocol

// Version is the wire protocol version. The client rejects any HELLO
// response whose VERSION does not match this string exactly; there is no
// negotiation between versions.
const Version = "0.4"
