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
	"encoding/binary"
	"fmt"
	"io"
	"iter"
)

const (
	localFileHeaderSig   = 0x04034b50
	centralDirHeaderSig  = 0x02014b50
	dataDescriptorSig    = 0x08074b50
	zip64EndOfCentralSig = 0x06064b50
	endOfCentralDirSig   = 0x06054b50
)

const (
	flagEncrypted      = 1 << 0
	flagDataDescriptor = 1 << 3
	flagPatchData      = 1 << 5
	flagStrongEncrypt  = 1 << 6
)

// localFileHeaderFixedLen is the length, in bytes, of the fixed portion of
// a local file header starting just after its 4-byte signature.
const localFileHeaderFixedLen = 26

// Reader reads ZIP entries from an upstream source one at a time without
// ever seeking, stopping cleanly at the central directory. It does not
// itself buffer the whole archive; each entry's body must be consumed (via
// Entry.Open or Entry.Autodrain) before Next will return the following
// entry.
type Reader struct {
	pr       *PartialReader
	pending  *bodyHandle
	done     bool
	finalErr error
}

// NewReader builds a Reader over src, an io.Reader or a ChunkSource.
func NewReader(src any) (*Reader, error) {
	pr, err := FromStream(src)
	if err != nil {
		return nil, err
	}
	return &Reader{pr: pr}, nil
}

// NewReaderContext is equivalent to NewReader but takes the context used
// for errors raised during construction; Next and Entries each take their
// own context per call.
func NewReaderContext(ctx context.Context, src any) (*Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewReader(src)
}

// Next parses and returns the next archive entry, or (nil, io.EOF) once
// the central directory is reached. The previous entry's body must have
// been opened or drained (fully read, or Close called) before calling
// Next again, or Next returns ErrBodyNotConsumed.
func (r *Reader) Next(ctx context.Context) (*Entry, error) {
	if r.finalErr != nil {
		return nil, r.finalErr
	}
	if r.done {
		return nil, io.EOF
	}
	if r.pending != nil {
		if !r.pending.used {
			err := fmt.Errorf("%w: %w", errZipstream, ErrBodyNotConsumed)
			r.finalErr = err
			r.pr.Cancel(err)
			return nil, err
		}
		<-r.pending.done
		r.pending = nil
	}

	block, err := r.pr.ReadAmount(ctx, 4+localFileHeaderFixedLen)
	if err != nil {
		r.finalErr = err
		r.pr.Cancel(err)
		return nil, err
	}
	switch len(block) {
	case 0:
		// Clean end of archive: nothing more arrived, including no
		// trailing central directory. This is how a stream written with
		// Options.OmitCentralDirectory ends.
		r.done = true
		r.pr.Cancel(io.EOF)
		return nil, io.EOF
	case 4 + localFileHeaderFixedLen:
		// Full header block arrived; fall through to parse it below.
	default:
		err := fmt.Errorf("%w: %w", errZipstream, ErrUnexpectedEnd)
		r.finalErr = err
		r.pr.Cancel(err)
		return nil, err
	}

	signature := binary.LittleEndian.Uint32(block[0:4])
	switch signature {
	case centralDirHeaderSig, zip64EndOfCentralSig, endOfCentralDirSig:
		r.done = true
		r.pr.Cancel(io.EOF)
		return nil, io.EOF
	case localFileHeaderSig:
		e, err := r.readLocalEntry(ctx, block[4:])
		if err != nil {
			r.finalErr = err
			r.pr.Cancel(err)
			return nil, err
		}
		if e.body != nil {
			r.pending = e.body
		}
		return e, nil
	default:
		err := fmt.Errorf("%w: %w: %#08x", errZipstream, ErrBadSignature, signature)
		r.finalErr = err
		r.pr.Cancel(err)
		return nil, err
	}
}

func (r *Reader) readLocalEntry(ctx context.Context, fixed []byte) (*Entry, error) {
	versionNeeded := binary.LittleEndian.Uint16(fixed[0:2])
	generalFlag := binary.LittleEndian.Uint16(fixed[2:4])
	method := binary.LittleEndian.Uint16(fixed[4:6])
	modTime := binary.LittleEndian.Uint16(fixed[6:8])
	modDate := binary.LittleEndian.Uint16(fixed[8:10])
	crc := binary.LittleEndian.Uint32(fixed[10:14])
	compressedSize := uint64(binary.LittleEndian.Uint32(fixed[14:18]))
	originalSize := uint64(binary.LittleEndian.Uint32(fixed[18:22]))
	nameLen := int(binary.LittleEndian.Uint16(fixed[22:24]))
	extraLen := int(binary.LittleEndian.Uint16(fixed[24:26]))

	if versionNeeded > 45 {
		return nil, fmt.Errorf("%w: %w: %d", errZipstream, ErrUnsupportedVersion, versionNeeded)
	}
	if generalFlag&(flagEncrypted|flagDataDescriptor|flagPatchData|flagStrongEncrypt) != 0 {
		return nil, fmt.Errorf("%w: %w: %#04x", errZipstream, ErrUnsupportedFlag, generalFlag)
	}
	if method != 0 && method != 8 {
		return nil, fmt.Errorf("%w: %w: %d", errZipstream, ErrUnknownCompressionMethod, method)
	}

	nameBytes, err := r.pr.ReadAmountStrict(ctx, nameLen)
	if err != nil {
		return nil, fmt.Errorf("%w: file name: %w", errZipstream, err)
	}
	name := string(nameBytes)

	extraBytes, err := r.pr.ReadAmountStrict(ctx, extraLen)
	if err != nil {
		return nil, fmt.Errorf("%w: extra field: %w", errZipstream, err)
	}
	zip64, ts, err := decodeExtra(extraBytes)
	if err != nil {
		return nil, err
	}
	if zip64 != nil {
		originalSize = zip64.OriginalSize
		compressedSize = zip64.CompressedSize
	}

	e := &Entry{
		Name:               name,
		ExtendedTimestamps: ts,
		ModTime:            msDosTimeToTime(modDate, modTime),
		OriginalSize:       originalSize,
		CompressedSize:     compressedSize,
		CRC32:              crc,
		Method:             method,
	}
	if ts != nil && ts.Modify != nil {
		e.ModTime = *ts.Modify
	}
	if e.IsDir() {
		e.Kind = EntryDirectory
		// A directory's body is normally empty; skip whatever it declares
		// so the next header is read from the right position.
		if err := r.pr.SkipAmount(ctx, int(compressedSize)); err != nil {
			return nil, fmt.Errorf("%w: directory body: %w", errZipstream, err)
		}
		return e, nil
	}
	e.Kind = EntryFile
	e.body = newBodyHandle(r.pr, method, compressedSize, originalSize, crc)
	return e, nil
}

// Entries returns a lazy, pull-driven sequence of the archive's entries.
// Iteration stops, yielding a final (nil, err) pair, on any parse error;
// a clean end of archive is not yielded at all, matching range-over-func
// convention. The caller must still Open or Autodrain each yielded
// entry's body before the next iteration proceeds.
func (r *Reader) Entries(ctx context.Context) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for {
			e, err := r.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
