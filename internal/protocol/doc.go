// Package protocol owns the worker wire contract.
//
// Ownership boundary:
// - outbound command line encoding
// - error taxonomy shared by framing, decoding and the engine
//
// Inbound framing lives in protocol/frame.
package protocol
