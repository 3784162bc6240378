package trie

import (
	"errors"
	"fmt"
)

var errDecodeInvalid = errors.New("trie: invalid encoded node")

// decodeNode decodes an RLP-encoded trie node. hash is the expected hash
// reference of this node, cached on the resulting node.
func decodeNode(hash hashNode, data []byte) (node, error) {
	if len(data) == 0 {
		return nil, errDecodeInvalid
	}
	elems, err := decodeRLPList(data)
	if err != nil {
		return nil, fmt.Errorf("trie decode: %w", err)
	}
	switch len(elems) {
	case 2:
		return decodeShort(hash, elems)
	case 17:
		return decodeFull(hash, elems)
	default:
		return nil, fmt.Errorf("%w: expected 2 or 17 elements, got %d", errDecodeInvalid, len(elems))
	}
}

func decodeShort(hash hashNode, elems [][]byte) (node, error) {
	key := compactToHex(elems[0])
	if hasTerm(key) {
		return &shortNode{
			Key:   key,
			Val:   valueNode(elems[1]),
			flags: nodeFlag{hash: hash, dirty: false},
		}, nil
	}
	child, err := decodeRef(elems[1])
	if err != nil {
		return nil, err
	}
	return &shortNode{
		Key:   key,
		Val:   child,
		flags: nodeFlag{hash: hash, dirty: false},
	}, nil
}

func decodeFull(hash hashNode, elems [][]byte) (node, error) {
	n := &fullNode{flags: nodeFlag{hash: hash, dirty: false}}
	for i := 0; i < 16; i++ {
		if len(elems[i]) == 0 {
			continue
		}
		child, err := decodeRef(elems[i])
		if err != nil {
			return nil, err
		}
		n.Children[i] = child
	}
	if len(elems[16]) > 0 {
		n.Children[16] = valueNode(elems[16])
	}
	return n, nil
}

// decodeRef decodes a child node reference: 32 bytes means a hash
// reference, anything else is an inline node decoded recursively.
func decodeRef(data []byte) (node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) == 32 {
		return hashNode(data), nil
	}
	return decodeNode(nil, data)
}

func decodeLength(data []byte, lenLen int) int {
	var length int
	for i := 0; i < lenLen; i++ {
		length = length<<8 | int(data[i])
	}
	return length
}

func decodeRLPList(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, errDecodeInvalid
	}
	prefix := data[0]
	if prefix < 0xc0 {
		return nil, fmt.Errorf("%w: expected list, got string prefix 0x%02x", errDecodeInvalid, prefix)
	}
	var payload []byte
	switch {
	case prefix <= 0xf7:
		length := int(prefix - 0xc0)
		if 1+length > len(data) {
			return nil, errDecodeInvalid
		}
		payload = data[1 : 1+length]
	default:
		lenLen := int(prefix - 0xf7)
		if 1+lenLen > len(data) {
			return nil, errDecodeInvalid
		}
		length := decodeLength(data[1:1+lenLen], lenLen)
		if 1+lenLen+length > len(data) {
			return nil, errDecodeInvalid
		}
		payload = data[1+lenLen : 1+lenLen+length]
	}
	var elems [][]byte
	for len(payload) > 0 {
		elem, rest, err := decodeOneElement(payload)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		payload = rest
	}
	return elems, nil
}

func decodeOneElement(data []byte) (content []byte, rest []byte, err error) {
	if len(data) == 0 {
		return nil, nil, errDecodeInvalid
	}
	prefix := data[0]
	switch {
	case prefix <= 0x7f:
		return data[:1], data[1:], nil
	case prefix == 0x80:
		return nil, data[1:], nil
	case prefix <= 0xb7:
		length := int(prefix - 0x80)
		if 1+length > len(data) {
			return nil, nil, errDecodeInvalid
		}
		return data[1 : 1+length], data[1+length:], nil
	case prefix <= 0xbf:
		lenLen := int(prefix - 0xb7)
		if 1+lenLen > len(data) {
			return nil, nil, errDecodeInvalid
		}
		length := decodeLength(data[1:1+lenLen], lenLen)
		end := 1 + lenLen + length
		if end > len(data) {
			return nil, nil, errDecodeInvalid
		}
		return data[1+lenLen : end], data[end:], nil
	case prefix <= 0xf7:
		length := int(prefix - 0xc0)
		end := 1 + length
		if end > len(data) {
			return nil, nil, errDecodeInvalid
		}
		return data[:end], data[end:], nil
	default:
		lenLen := int(prefix - 0xf7)
		if 1+lenLen > len(data) {
			return nil, nil, errDecodeInvalid
		}
		length := decodeLength(data[1:1+lenLen], lenLen)
		end := 1 + lenLen + length
		if end > len(data) {
			return nil, nil, errDecodeInvalid
		}
		return data[:end], data[end:], nil
	}
}
