package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// quickHashChunkSize is the number of bytes read from each end of a file for
// the quick hash.
const quickHashChunkSize = 64 * 1024

// HashBytes returns the SHA-256 hex digest of the given bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the SHA-256 hex digest of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// QuickHashFile computes a fast content fingerprint from the first and last
// 64 KiB of the file plus its size. It is used to look up prior probe results
// without reading the whole file; a quick-hash hit must be confirmed with a
// full hash before being trusted.
func QuickHashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for quick hash: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file for quick hash: %w", err)
	}

	h := sha256.New()

	head := make([]byte, quickHashChunkSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read head chunk: %w", err)
	}
	h.Write(head[:n])

	if info.Size() > quickHashChunkSize {
		tail := make([]byte, quickHashChunkSize)
		offset := info.Size() - quickHashChunkSize
		if offset < int64(n) {
			offset = int64(n)
		}
		m, err := f.ReadAt(tail, offset)
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read tail chunk: %w", err)
		}
		h.Write(tail[:m])
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	h.Write(sizeBuf[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}
