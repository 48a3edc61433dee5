package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// HashBytes computes the raw SHA-1 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0content", the
// same scheme Git uses for content-addressing.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// BinaryOID decodes a 40-char hex Hash into its 20 raw bytes, as stored in
// tree objects and the index.
func BinaryOID(h Hash) ([]byte, error) {
	b, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("decode oid %q: %w", h, err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("oid %q: want 20 bytes, got %d", h, len(b))
	}
	return b, nil
}

// HashFromBinary encodes 20 raw OID bytes as a 40-char hex Hash.
func HashFromBinary(b []byte) (Hash, error) {
	if len(b) != 20 {
		return "", fmt.Errorf("binary oid: want 20 bytes, got %d", len(b))
	}
	return Hash(hex.EncodeToString(b)), nil
}
