// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipstream

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
)

// bodyHandle mediates access to one file entry's body on the read side. It
// guarantees Open/Autodrain is called at most once per entry and that,
// whichever is chosen, the underlying Partial Reader ends up positioned
// immediately after the entry's declared compressed bytes before the next
// Reader.Next call proceeds.
type bodyHandle struct {
	pr             *PartialReader
	compressedSize uint64
	originalSize   uint64
	method         uint16
	wantCRC        uint32

	used bool
	done chan struct{}
}

func newBodyHandle(pr *PartialReader, method uint16, compressedSize, originalSize uint64, wantCRC uint32) *bodyHandle {
	return &bodyHandle{
		pr:             pr,
		compressedSize: compressedSize,
		originalSize:   originalSize,
		method:         method,
		wantCRC:        wantCRC,
		done:           make(chan struct{}),
	}
}

// open returns the decoded, checksum-verified body. Closing the returned
// reader before EOF (the Go rendering of "downstream cancel") drains the
// remaining compressed bytes so the parent archive reader can advance.
func (h *bodyHandle) open(ctx context.Context) (io.ReadCloser, error) {
	if h.used {
		return nil, fmt.Errorf("%w: %w", errZipstream, ErrBodyAlreadyUsed)
	}
	h.used = true

	raw, err := h.pr.StreamAmount(ctx, h.compressedSize)
	if err != nil {
		close(h.done)
		return nil, err
	}

	// Wrap the compressed sub-stream in the exact-bytes transform so a
	// declared compressedSize that doesn't match what the source actually
	// holds fails deterministically with ErrByteCountMismatch, rather than
	// being silently truncated by StreamAmount's early-EOF behavior.
	exact := newExactBytesReader(raw, h.compressedSize)

	var decoded io.Reader
	switch h.method {
	case 0:
		decoded = exact
	case 8:
		decoded = newDeflateDecoder(exact)
	default:
		raw.Close()
		close(h.done)
		return nil, fmt.Errorf("%w: %w: method %d", errZipstream, ErrUnknownCompressionMethod, h.method)
	}

	return &checksumReader{
		r:       decoded,
		raw:     raw,
		want:    h.wantCRC,
		crc:     crc32.NewIEEE(),
		onClose: func() { close(h.done) },
	}, nil
}

// autodrain discards the body without decoding it or verifying its
// checksum.
func (h *bodyHandle) autodrain(ctx context.Context) error {
	if h.used {
		return fmt.Errorf("%w: %w", errZipstream, ErrBodyAlreadyUsed)
	}
	h.used = true
	defer close(h.done)

	return h.pr.SkipAmount(ctx, int(h.compressedSize))
}

// checksumReader wraps the decoded body stream, accumulating a running
// CRC-32 (IEEE) and checking it against the declared value once the
// decoded stream reaches EOF. raw is the underlying compressed sub-stream,
// closed (which drains any unread compressed bytes) when the decoded stream
// reaches EOF or when this reader is closed, whichever comes first.
type checksumReader struct {
	r       io.Reader
	raw     io.Closer
	want    uint32
	crc     hash32
	verified bool
	onClose func()
	closed  bool
}

// hash32 is the subset of hash.Hash32 checksumReader relies on.
type hash32 interface {
	io.Writer
	Sum32() uint32
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc.Write(p[:n])
	}
	if err == io.EOF {
		// Reaching EOF ends the body, so Reader.Next may proceed without a
		// separate Close call; a later Close is then a no-op.
		closeErr := c.Close()
		if !c.verified {
			c.verified = true
			if got := c.crc.Sum32(); got != c.want {
				return n, fmt.Errorf("%w: %w: got %#08x, want %#08x", errZipstream, ErrChecksumMismatch, got, c.want)
			}
		}
		if closeErr != nil {
			return n, closeErr
		}
		return n, io.EOF
	}
	return n, err
}

func (c *checksumReader) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.raw.Close()
	if c.onClose != nil {
		c.onClose()
	}
	return err
}
