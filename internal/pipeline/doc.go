// Package pipeline commits client submissions to the object store.
//
// A submission names the revision its author last saw. Submit reads the
// object, rebases the patches over everything committed since that
// revision, applies them and issues a conditional write expecting the
// revision it read. Losing that write to a concurrent commit restarts
// the attempt against the new tail, up to WithMaxAttempts. Transient
// storage errors are retried with exponential backoff.
//
// Every committed operation is handed to the configured publishers
// after the write succeeds.
package pipeline
