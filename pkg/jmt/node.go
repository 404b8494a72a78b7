package jmt

import (
	"fmt"

	"github.com/duskbridge/strata/pkg/types"
)

type nodeKind byte

const (
	kindTombstone nodeKind = 0
	kindLeaf      nodeKind = 1
	kindInternal  nodeKind = 2
)

// node is the in-memory, decoded form of a persisted JMT node.
type node struct {
	kind nodeKind

	// set when kind == kindLeaf
	keyHash   types.Hash
	valueHash types.Hash

	// set when kind == kindInternal
	children [16]types.Hash
}

func (n node) hash() types.Hash {
	switch n.kind {
	case kindLeaf:
		return leafHash(n.keyHash, n.valueHash)
	case kindInternal:
		return internalHash(n.children)
	default:
		return types.Hash{}
	}
}

func encodeNode(n node) []byte {
	switch n.kind {
	case kindTombstone:
		return []byte{byte(kindTombstone)}
	case kindLeaf:
		buf := make([]byte, 1+2*types.HashSize)
		buf[0] = byte(kindLeaf)
		copy(buf[1:], n.keyHash.Bytes())
		copy(buf[1+types.HashSize:], n.valueHash.Bytes())
		return buf
	case kindInternal:
		buf := make([]byte, 1+16*types.HashSize)
		buf[0] = byte(kindInternal)
		for i, c := range n.children {
			copy(buf[1+i*types.HashSize:], c.Bytes())
		}
		return buf
	default:
		panic(fmt.Sprintf("jmt: unknown node kind %d", n.kind))
	}
}

func decodeNode(b []byte) (node, error) {
	if len(b) == 0 {
		return node{}, fmt.Errorf("jmt: empty node encoding: %w", types.ErrDecode)
	}
	switch nodeKind(b[0]) {
	case kindTombstone:
		return node{kind: kindTombstone}, nil
	case kindLeaf:
		if len(b) != 1+2*types.HashSize {
			return node{}, fmt.Errorf("jmt: malformed leaf node encoding (%d bytes): %w", len(b), types.ErrDecode)
		}
		keyHash, err := types.HashFromBytes(b[1 : 1+types.HashSize])
		if err != nil {
			return node{}, err
		}
		valueHash, err := types.HashFromBytes(b[1+types.HashSize:])
		if err != nil {
			return node{}, err
		}
		return node{kind: kindLeaf, keyHash: keyHash, valueHash: valueHash}, nil
	case kindInternal:
		if len(b) != 1+16*types.HashSize {
			return node{}, fmt.Errorf("jmt: malformed internal node encoding (%d bytes): %w", len(b), types.ErrDecode)
		}
		var n node
		n.kind = kindInternal
		for i := 0; i < 16; i++ {
			h, err := types.HashFromBytes(b[1+i*types.HashSize : 1+(i+1)*types.HashSize])
			if err != nil {
				return node{}, err
			}
			n.children[i] = h
		}
		return n, nil
	default:
		return node{}, fmt.Errorf("jmt: unknown node kind %d: %w", b[0], types.ErrDecode)
	}
}
