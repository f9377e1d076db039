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
	"io"
)

// ChunkSource is an upstream byte source that hands back chunks of
// arbitrary length chosen by the source rather than the caller. It is the
// Default-variant counterpart to an ordinary io.Reader, which is already
// "bring your own buffer" by contract and is wrapped directly via
// FromReader instead.
type ChunkSource interface {
	// NextChunk returns the next chunk of upstream data, or io.EOF if the
	// source is exhausted. A returned chunk must not be reused by the
	// caller after it is handed to NextChunk's caller.
	NextChunk(ctx context.Context) ([]byte, error)
}

// partialReaderImpl is the one primitive that differs between the Default
// and BYOB variants: how the next up-to-max bytes are obtained from
// upstream. ReadAmount, ReadAmountStrict, SkipAmount, and StreamAmount are
// implemented once on PartialReader in terms of it.
type partialReaderImpl interface {
	limitedRead(ctx context.Context, max int) ([]byte, error)
	cancel(reason error)
}

// PartialReader converts a chunk-granular upstream byte source into the
// byte-precise primitives the stream reader needs: read exactly N, read up
// to N, skip N, and hand the next N bytes to a caller as their own stream.
//
// A PartialReader must not be shared between multiple readers, and at most
// one outstanding LimitedRead/ReadAmount/ReadAmountStrict/SkipAmount call
// may be in flight at a time; StreamAmount's returned *BoundedReader holds
// the PartialReader until it is fully consumed or closed.
type PartialReader struct {
	impl     partialReaderImpl
	canceled error
}

// FromReader builds the BYOB variant over an ordinary io.Reader. Because
// io.Reader.Read(p) never returns more than len(p) bytes, no leftover
// buffering is ever needed.
func FromReader(r io.Reader) *PartialReader {
	return &PartialReader{impl: &byobPartialReader{r: r}}
}

// FromChunkSource builds the Default variant over a ChunkSource. Excess
// bytes delivered by a chunk beyond a bounded request are retained as a
// single leftover slice and served before the next upstream read.
func FromChunkSource(s ChunkSource) *PartialReader {
	return &PartialReader{impl: &defaultPartialReader{src: s}}
}

// FromStream dispatches on the dynamic type of src: io.Reader selects the
// BYOB variant, ChunkSource selects the Default variant. Construction is
// lazy; no I/O is performed.
func FromStream(src any) (*PartialReader, error) {
	switch s := src.(type) {
	case io.Reader:
		return FromReader(s), nil
	case ChunkSource:
		return FromChunkSource(s), nil
	default:
		return nil, fmt.Errorf("%w: source of type %T is neither an io.Reader nor a ChunkSource", errZipstream, src)
	}
}

// LimitedRead returns the next available bytes, capped at max. It returns
// (nil, io.EOF) at a clean upstream end and never returns an empty
// non-nil slice with a nil error.
func (pr *PartialReader) LimitedRead(ctx context.Context, max int) ([]byte, error) {
	if pr.canceled != nil {
		return nil, pr.canceled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := pr.impl.limitedRead(ctx, max)
	if err != nil && err != io.EOF {
		pr.Cancel(err)
	}
	return b, err
}

// ReadAmount loops LimitedRead until n bytes are collected or upstream
// ends, returning the short prefix on early end.
func (pr *PartialReader) ReadAmount(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	first, err := pr.LimitedRead(ctx, n)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(first) == n {
		// Avoid allocating a full n-byte buffer when the first call
		// already satisfies it.
		return first, nil
	}

	out := make([]byte, 0, n)
	out = append(out, first...)
	for len(out) < n {
		b, err := pr.LimitedRead(ctx, n-len(out))
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// ReadAmountStrict is ReadAmount but fails with ErrUnexpectedEnd if fewer
// than n bytes are available before upstream ends.
func (pr *PartialReader) ReadAmountStrict(ctx context.Context, n int) ([]byte, error) {
	b, err := pr.ReadAmount(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		err := fmt.Errorf("%w: %w: got %d bytes, want %d", errZipstream, ErrUnexpectedEnd, len(b), n)
		pr.Cancel(err)
		return nil, err
	}
	return b, nil
}

// SkipAmount reads and discards up to n bytes, stopping early if upstream
// ends.
func (pr *PartialReader) SkipAmount(ctx context.Context, n int) error {
	const scratchCap = 2048
	for n > 0 {
		chunkMax := n
		if chunkMax > scratchCap {
			chunkMax = scratchCap
		}
		b, err := pr.LimitedRead(ctx, chunkMax)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		n -= len(b)
	}
	return nil
}

// StreamAmount returns a pull-driven io.ReadCloser yielding exactly the
// next n bytes of the underlying source (or fewer, if upstream ends
// early). The returned *BoundedReader holds this PartialReader until it
// reaches its consumed state (full read, short upstream end, or Close);
// no other PartialReader operation may be issued until then.
func (pr *PartialReader) StreamAmount(ctx context.Context, n uint64) (*BoundedReader, error) {
	if pr.canceled != nil {
		return nil, pr.canceled
	}
	return &BoundedReader{
		pr:        pr,
		ctx:       ctx,
		remaining: n,
		done:      make(chan struct{}),
	}, nil
}

// Cancel releases the upstream handle with the given reason. Any
// in-flight or future operation on this PartialReader returns reason.
func (pr *PartialReader) Cancel(reason error) {
	if pr.canceled != nil {
		return
	}
	if reason == nil {
		reason = errZipstream
	}
	pr.canceled = reason
	pr.impl.cancel(reason)
}

// BoundedReader is the pull-driven sub-stream returned by
// PartialReader.StreamAmount. It implements io.ReadCloser.
type BoundedReader struct {
	pr        *PartialReader
	ctx       context.Context
	remaining uint64
	consumed  bool
	err       error
	done      chan struct{}
}

// Read implements io.Reader, yielding bytes from the parent PartialReader
// bounded to the remaining declared length of this sub-stream.
func (b *BoundedReader) Read(p []byte) (int, error) {
	if b.consumed {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	if err := b.ctx.Err(); err != nil {
		b.finish(err)
		return 0, err
	}
	if b.remaining == 0 {
		b.finish(nil)
		return 0, io.EOF
	}

	max := len(p)
	if uint64(max) > b.remaining {
		max = int(b.remaining)
	}
	chunk, err := b.pr.LimitedRead(b.ctx, max)
	n := copy(p, chunk)
	b.remaining -= uint64(n)

	switch {
	case err == io.EOF:
		b.finish(nil)
		return n, io.EOF
	case err != nil:
		b.finish(err)
		return n, err
	case b.remaining == 0:
		b.finish(nil)
		return n, io.EOF
	default:
		return n, nil
	}
}

// Close implements io.Closer. If the sub-stream has not been fully read,
// Close skips its remaining declared bytes on the parent PartialReader so
// the parent is repositioned past this entry. Close after EOF is a no-op.
func (b *BoundedReader) Close() error {
	if b.consumed {
		return nil
	}
	err := b.pr.SkipAmount(b.ctx, int(b.remaining))
	b.remaining = 0
	b.finish(err)
	return err
}

// Consumed reports whether this sub-stream has reached its terminal state.
func (b *BoundedReader) Consumed() bool {
	return b.consumed
}

// Done returns a channel that is closed once this sub-stream reaches its
// terminal state, the Go rendering of the spec's onConsumed signal.
func (b *BoundedReader) Done() <-chan struct{} {
	return b.done
}

func (b *BoundedReader) finish(err error) {
	if b.consumed {
		return
	}
	b.consumed = true
	b.err = err
	close(b.done)
}

// byobPartialReader is the Bring-Your-Own-Buffer variant: upstream is an
// ordinary io.Reader, which already bounds each read to a caller-supplied
// buffer, so no leftover is ever retained.
type byobPartialReader struct {
	r      io.Reader
	reason error
}

func (p *byobPartialReader) limitedRead(ctx context.Context, max int) ([]byte, error) {
	if p.reason != nil {
		return nil, p.reason
	}
	buf := make([]byte, max)
	n, err := p.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF || err == nil {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("%w: reading upstream: %w", errZipstream, err)
}

func (p *byobPartialReader) cancel(reason error) {
	p.reason = reason
}

// defaultPartialReader is the variant for a ChunkSource, which hands back
// chunks of a length the source itself picks. Bytes beyond a bounded
// request are retained in leftover and served before the next NextChunk
// call.
type defaultPartialReader struct {
	src      ChunkSource
	leftover []byte
	reason   error
}

func (p *defaultPartialReader) limitedRead(ctx context.Context, max int) ([]byte, error) {
	if p.reason != nil {
		return nil, p.reason
	}

	if len(p.leftover) > 0 {
		return p.takeFromLeftover(max), nil
	}

	chunk, err := p.src.NextChunk(ctx)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading upstream: %w", errZipstream, err)
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}

	p.leftover = chunk
	return p.takeFromLeftover(max), nil
}

func (p *defaultPartialReader) takeFromLeftover(max int) []byte {
	if len(p.leftover) <= max {
		out := p.leftover
		p.leftover = nil
		return out
	}
	out := p.leftover[:max]
	p.leftover = p.leftover[max:]
	return out
}

func (p *defaultPartialReader) cancel(reason error) {
	p.reason = reason
}
