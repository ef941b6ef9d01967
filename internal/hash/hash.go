// Package hash computes content digests used as file identity.
package hash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/franz/music-shelver/internal/util"
)

// DefaultChunkSize is the read size used when none is configured
const DefaultChunkSize = 128 * 1024

// Hasher streams files through SHA-256 in fixed-size chunks
type Hasher struct {
	chunkSize int
}

// New creates a Hasher. A non-positive chunk size selects DefaultChunkSize.
func New(chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Hasher{chunkSize: chunkSize}
}

// ChunkSize returns the configured read size
func (h *Hasher) ChunkSize() int {
	return h.chunkSize
}

// File returns the lowercase hex SHA-256 of the file's content
func (h *Hasher) File(ctx context.Context, path string) (string, error) {
	f, err := util.RetryableOpen(path, util.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", util.ErrIO, path, err)
	}
	defer f.Close()

	return h.Reader(ctx, f)
}

// Reader hashes everything read from r, checking ctx between chunks
func (h *Hasher) Reader(ctx context.Context, r io.Reader) (string, error) {
	digest := sha256.New()
	buf := make([]byte, h.chunkSize)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to read: %v", util.ErrIO, err)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
