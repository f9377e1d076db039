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
	"strings"
	"time"
)

// Kind discriminates the two entry variants a ZIP archive can contain.
type Kind int

const (
	// EntryFile is a regular file entry with a body.
	EntryFile Kind = iota

	// EntryDirectory is a directory entry. Its name ends with "/" and it
	// has no body.
	EntryDirectory
)

func (k Kind) String() string {
	if k == EntryDirectory {
		return "directory"
	}
	return "file"
}

// ExtendedTimestamps holds the optional absolute instants carried by the
// 0x5455 extended timestamp extra field. Each field is nil if not present.
type ExtendedTimestamps struct {
	Modify *time.Time
	Access *time.Time
	Create *time.Time
}

const (
	extTimeFlagModify = 0x1
	extTimeFlagAccess = 0x2
	extTimeFlagCreate = 0x4
)

// Entry describes a single archive member as produced by Reader.Next.
// Directory entries carry no body; for file entries, exactly one of Open
// or Autodrain must be called before the reader will produce the next
// entry.
type Entry struct {
	Kind               Kind
	Name               string
	ExtendedTimestamps *ExtendedTimestamps
	ModTime            time.Time

	// File-only fields; zero for directories.
	OriginalSize   uint64
	CompressedSize uint64
	CRC32          uint32
	Method         uint16

	body *bodyHandle
}

// IsDir reports whether the entry is a directory, i.e. its name ends in
// "/". This mirrors the on-wire convention ZIP uses to mark directories;
// there is no separate directory bit in the format itself.
func (e *Entry) IsDir() bool {
	return e.Kind == EntryDirectory || strings.HasSuffix(e.Name, "/")
}

// Open returns the entry's decoded, checksum-verified body as an
// io.ReadCloser. It fails with ErrBodyAlreadyUsed if Open or Autodrain was
// already called for this entry; for a directory entry, which has no body,
// it returns an error without opening anything. Closing
// the returned reader before EOF drains the remaining declared bytes so
// the archive parser can advance to the next entry; reading to EOF makes
// Close a no-op.
func (e *Entry) Open(ctx context.Context) (io.ReadCloser, error) {
	if e.body == nil {
		return nil, fmt.Errorf("%w: directory entries have no body", errZipstream)
	}
	return e.body.open(ctx)
}

// Autodrain discards the entry's body without decoding it, advancing the
// parser past it. It fails with ErrBodyAlreadyUsed if Open or Autodrain
// was already called for this entry.
func (e *Entry) Autodrain(ctx context.Context) error {
	if e.body == nil {
		return nil
	}
	return e.body.autodrain(ctx)
}

// BodySource describes a write-side entry body: either the raw
// uncompressed bytes of a file, or bytes the caller has already deflated.
// zipstream never compresses data itself; callers supply either Stored or
// Deflated bodies.
type BodySource interface {
	method() uint16
	originalSize() uint64
	compressedSize() uint64
	crc32() uint32
	reader() io.Reader
}

type storedBody struct {
	r    io.Reader
	size uint64
	crc  uint32
}

func (b *storedBody) method() uint16          { return 0 }
func (b *storedBody) originalSize() uint64    { return b.size }
func (b *storedBody) compressedSize() uint64  { return b.size }
func (b *storedBody) crc32() uint32           { return b.crc }
func (b *storedBody) reader() io.Reader       { return b.r }

// Stored builds a BodySource for a file written without compression. r
// must yield exactly originalSize bytes, whose CRC-32 (IEEE) is crc.
func Stored(r io.Reader, originalSize uint64, crc uint32) BodySource {
	return &storedBody{r: r, size: originalSize, crc: crc}
}

type deflatedBody struct {
	r              io.Reader
	originalSz     uint64
	compressedSz   uint64
	crc            uint32
}

func (b *deflatedBody) method() uint16         { return 8 }
func (b *deflatedBody) originalSize() uint64   { return b.originalSz }
func (b *deflatedBody) compressedSize() uint64 { return b.compressedSz }
func (b *deflatedBody) crc32() uint32          { return b.crc }
func (b *deflatedBody) reader() io.Reader      { return b.r }

// Deflated builds a BodySource for a file whose bytes have already been
// compressed with raw DEFLATE by the caller. r must yield exactly
// compressedSize bytes which decompress to originalSize bytes with CRC-32
// (IEEE) crc. zipstream does not verify this on write; an incorrect
// declaration produces an archive that fails to decode correctly.
func Deflated(r io.Reader, originalSize, compressedSize uint64, crc uint32) BodySource {
	return &deflatedBody{r: r, originalSz: originalSize, compressedSz: compressedSize, crc: crc}
}

// WriteEntry describes a single archive member to be written by Writer.
type WriteEntry struct {
	Kind               Kind
	Name               string
	ExtendedTimestamps *ExtendedTimestamps
	ModTime            time.Time

	// Body is required for EntryFile and ignored for EntryDirectory.
	Body BodySource
}
