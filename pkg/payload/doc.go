// Package payload gives typed access to subscription records and event
// tickets stored in shared blocks.
//
// Every payload starts with a four-byte magic tag and a two-byte version,
// followed by a CBOR body. Nothing is trusted until both match; a mismatch
// is reported as ErrInvalid rather than acted on. Map functions return
// views that must be released, and they release the underlying mapping
// themselves when validation fails.
package payload
