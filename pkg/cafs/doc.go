// Package cafs implements the local content-addressable store backing
// pulls: a user-level disk cache keyed by SHA-256 digest.
//
// Objects live at <root>/objects/sha256/<d0d1>/<d2d3>/<full-hex> and
// become visible only after a verified digest check and an atomic rename,
// so readers never observe partial content. Concurrent producers of the
// same digest are serialized by an OS advisory lock on a per-digest lock
// file, which the OS releases if the holder crashes.
package cafs
