package block

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Every block file on disk carries a small header ahead of its payload
// bytes, recording the path it was written for. Block identity is
// otherwise only (hash(path), idx), and two distinct paths can share a
// hash bucket and index (spec design note, "hash collision on block
// file paths"); the header lets VerifyOwner detect that case instead of
// silently serving another path's bytes.
var headerMagic = [4]byte{'C', 'F', 'B', '1'}

const maxHeaderPathLen = 1 << 16

// headerLen returns the number of bytes the header for path occupies.
func headerLen(path string) int64 {
	return int64(len(headerMagic) + 2 + len(path))
}

func encodeHeader(path string) ([]byte, error) {
	if len(path) > maxHeaderPathLen-1 {
		return nil, fmt.Errorf("block: path too long for header: %d bytes", len(path))
	}
	buf := make([]byte, 0, headerLen(path))
	buf = append(buf, headerMagic[:]...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(path)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, path...)
	return buf, nil
}

// readHeaderOwner reads the header from r (positioned at offset 0 of
// the block file) and returns the path it was written for.
func readHeaderOwner(r io.Reader) (string, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return "", err
	}
	if magic != headerMagic {
		return "", fmt.Errorf("block: bad header magic %q", magic)
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	pathBuf := make([]byte, n)
	if _, err := io.ReadFull(r, pathBuf); err != nil {
		return "", err
	}
	return string(pathBuf), nil
}
