// Package model defines the revision-tracked document model: values,
// paths, the closed Patch sum type, object ids and (committed) operations.
//
// Documents hold only deterministic value kinds (no floats) and every
// persisted byte goes through MarshalCanonical, so a log replayed on any
// instance reproduces the stored value byte for byte.
//
// Strings are NFC normalized when decoded. SpliceText offsets count code
// points of the normalized string.
package model
