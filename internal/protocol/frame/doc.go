// Package frame owns the length-prefixed stream framing.
//
// Ownership boundary:
// - big-endian int32 length prefix
// - payload size limits
// - serialized concurrent frame writes
package frame
