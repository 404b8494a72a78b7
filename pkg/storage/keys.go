package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/duskbridge/strata/pkg/types"
)

// versionSeparator marks the boundary between a variable-length key
// component and the fixed 8-byte inverted-version suffix appended to it.
// escapeComponent guarantees this exact two-byte sequence never occurs
// inside an escaped component, so splitVersionedKey can find it with a
// plain forward search even when the component is an arbitrary byte
// string (non-verifiable keys are not required to be valid UTF-8).
// Because the separator sorts below every byte an escaped component can
// continue with, a base sorts before every longer base it is a prefix of,
// so composite keys stay in ascending base order.
var versionSeparator = []byte{0x00, 0x00}

// escapeComponent follows every 0x00 byte in b with a 0x01 padding byte, so
// {0x00, 0x00} can serve as an unambiguous separator regardless of b's
// content. The transform preserves byte order and byte-prefix
// relationships: if a is a byte-prefix of b, then escapeComponent(a) is a
// byte-prefix of escapeComponent(b).
func escapeComponent(b []byte) []byte {
	if bytes.IndexByte(b, 0x00) < 0 {
		return b
	}
	out := make([]byte, 0, len(b)+4)
	for _, c := range b {
		out = append(out, c)
		if c == 0x00 {
			out = append(out, 0x01)
		}
	}
	return out
}

func unescapeComponent(b []byte) []byte {
	if bytes.IndexByte(b, 0x00) < 0 {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == 0x00 {
			i++ // skip the escape padding byte
		}
	}
	return out
}

// versionedKey builds the on-disk key for base at version: escaped base,
// then the separator, then the big-endian bitwise complement of version.
// Complementing the version means that, for a fixed base, ascending byte
// order of the composite key corresponds to descending version order.
func versionedKey(base []byte, version types.Version) []byte {
	esc := escapeComponent(base)
	key := make([]byte, 0, len(esc)+len(versionSeparator)+8)
	key = append(key, esc...)
	key = append(key, versionSeparator...)
	var vbuf [8]byte
	binary.BigEndian.PutUint64(vbuf[:], ^uint64(version))
	return append(key, vbuf[:]...)
}

// versionedPrefix returns the byte prefix shared by every versioned key
// whose base starts with prefix.
func versionedPrefix(prefix []byte) []byte {
	return escapeComponent(prefix)
}

// splitVersionedKey recovers the base and version encoded by versionedKey.
func splitVersionedKey(key []byte) (base []byte, version types.Version, ok bool) {
	idx := bytes.Index(key, versionSeparator)
	if idx < 0 || len(key)-(idx+len(versionSeparator)) != 8 {
		return nil, 0, false
	}
	version = types.Version(^binary.BigEndian.Uint64(key[idx+len(versionSeparator):]))
	return unescapeComponent(key[:idx]), version, true
}

// encodeValue frames a versioned value with a presence byte, so a tombstone
// (present=false) can be distinguished from a zero-length value.
func encodeValue(present bool, raw []byte) []byte {
	if !present {
		return []byte{0}
	}
	out := make([]byte, 1+len(raw))
	out[0] = 1
	copy(out[1:], raw)
	return out
}

func decodeValue(b []byte) (present bool, raw []byte) {
	if len(b) == 0 || b[0] == 0 {
		return false, nil
	}
	return true, b[1:]
}
