package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefix for operation ids. The version suffix allows a future
// change of the hashed fields without colliding with stored ids.
const DomainOperation = "otcore/operation/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OperationID computes the content-addressed id of a submission.
// Identical submissions (same object, base revision, author, nonce and
// patches) hash to the same id, which lets the pipeline recognize a
// resubmission of something it already committed. An empty nonce is left
// out of the hashed document.
func OperationID(op Operation) (string, error) {
	patches, err := json.Marshal(op.Patches)
	if err != nil {
		return "", fmt.Errorf("OperationID: marshal patches: %w", err)
	}
	patchValue, err := DecodeValue(patches)
	if err != nil {
		return "", fmt.Errorf("OperationID: reparse patches: %w", err)
	}

	obj := Object{
		"object_id":     String(op.ObjectID.String()),
		"base_revision": Int(op.BaseRevision),
		"author":        String(op.Author),
		"patches":       patchValue,
	}
	if op.Nonce != "" {
		obj["nonce"] = String(op.Nonce)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OperationID: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// MustOperationID is like OperationID but panics on error.
// Use only in tests.
func MustOperationID(op Operation) string {
	id, err := OperationID(op)
	if err != nil {
		panic(err)
	}
	return id
}
