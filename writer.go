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

// zip64Sentinel32 marks a local or central header field as "see the
// ZIP64 extra record", per APPNOTE.
const zip64Sentinel32 = 0xffffffff

// versionNeededZip64 is the version-needed-to-extract value this package
// writes for every entry; it unconditionally emits ZIP64 extra records, so
// it unconditionally declares the version that requires them.
const versionNeededZip64 = 45

// Options configures a Writer.
type Options struct {
	// OmitCentralDirectory causes Close to skip the central directory, the
	// ZIP64 end-of-central-directory record, and the ZIP64 locator,
	// emitting only the local file headers and bodies already written.
	// The result remains decodable by Reader but not by random-access
	// decoders that require a central directory.
	OmitCentralDirectory bool
}

type centralRecord struct {
	name           string
	method         uint16
	crc            uint32
	compressedSize uint64
	originalSize   uint64
	modDate        uint16
	modTime        uint16
	localOffset    uint64
	extendedTS     *ExtendedTimestamps
	isDir          bool
}

// Writer emits a streaming ZIP archive to an underlying io.Writer. Entries
// must be written in full before the next WriteEntry call; Close must be
// called exactly once to emit the central directory and finalize the
// archive.
type Writer struct {
	dst     io.Writer
	opts    Options
	offset  uint64
	records []centralRecord
	closed  bool
}

// NewWriter builds a Writer over dst with default Options.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// NewWriterOptions builds a Writer over dst with explicit Options.
func NewWriterOptions(dst io.Writer, opts Options) *Writer {
	return &Writer{dst: dst, opts: opts}
}

func (w *Writer) write(b []byte) error {
	n, err := w.dst.Write(b)
	w.offset += uint64(n)
	if err != nil {
		return fmt.Errorf("%w: writing archive: %w", errZipstream, err)
	}
	return nil
}

// WriteEntry writes one archive member: its local file header, extra
// fields, and (for files) its full body. The body is piped through an
// exact-bytes transform that fails with ErrByteCountMismatch if the
// BodySource yields a different number of bytes than it declared.
func (w *Writer) WriteEntry(ctx context.Context, e WriteEntry) error {
	if w.closed {
		return fmt.Errorf("%w: write after close", errZipstream)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(e.Name) >= 1<<16 {
		return fmt.Errorf("%w: %w", errZipstream, ErrFilenameTooLong)
	}

	localOffset := w.offset
	modDate, modTime := timeToMSDos(e.ModTime)

	if e.Kind == EntryDirectory {
		if err := w.writeLocalHeader(e.Name, 0, 0, 0, 0, modDate, modTime, e.ExtendedTimestamps); err != nil {
			return err
		}
		w.records = append(w.records, centralRecord{
			name:        e.Name,
			modDate:     modDate,
			modTime:     modTime,
			localOffset: localOffset,
			extendedTS:  e.ExtendedTimestamps,
			isDir:       true,
		})
		return nil
	}

	if e.Body == nil {
		return fmt.Errorf("%w: file entry %q has no body", errZipstream, e.Name)
	}

	method := e.Body.method()
	originalSize := e.Body.originalSize()
	compressedSize := e.Body.compressedSize()
	crc := e.Body.crc32()

	if err := w.writeLocalHeader(e.Name, method, compressedSize, originalSize, crc, modDate, modTime, e.ExtendedTimestamps); err != nil {
		return err
	}

	ebw := newExactBytesWriter(w.dst, compressedSize)
	n, err := io.Copy(ebw, e.Body.reader())
	w.offset += uint64(n)
	if err != nil {
		return fmt.Errorf("%w: writing body of %q: %w", errZipstream, e.Name, err)
	}
	if err := ebw.Close(); err != nil {
		return fmt.Errorf("%w: body of %q: %w", errZipstream, e.Name, err)
	}

	w.records = append(w.records, centralRecord{
		name:           e.Name,
		method:         method,
		crc:            crc,
		compressedSize: compressedSize,
		originalSize:   originalSize,
		modDate:        modDate,
		modTime:        modTime,
		localOffset:    localOffset,
		extendedTS:     e.ExtendedTimestamps,
	})
	return nil
}

func (w *Writer) writeLocalHeader(name string, method uint16, compressedSize, originalSize uint64, crc uint32, modDate, modTime uint16, ts *ExtendedTimestamps) error {
	extra := encodeExtraLocal(originalSize, compressedSize, ts)

	hdr := make([]byte, 4+localFileHeaderFixedLen)
	binary.LittleEndian.PutUint32(hdr[0:4], localFileHeaderSig)
	binary.LittleEndian.PutUint16(hdr[4:6], versionNeededZip64)
	binary.LittleEndian.PutUint16(hdr[6:8], 0)
	binary.LittleEndian.PutUint16(hdr[8:10], method)
	binary.LittleEndian.PutUint16(hdr[10:12], modTime)
	binary.LittleEndian.PutUint16(hdr[12:14], modDate)
	binary.LittleEndian.PutUint32(hdr[14:18], crc)
	binary.LittleEndian.PutUint32(hdr[18:22], zip64Sentinel32)
	binary.LittleEndian.PutUint32(hdr[22:26], zip64Sentinel32)
	binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(extra)))

	if err := w.write(hdr); err != nil {
		return err
	}
	if err := w.write([]byte(name)); err != nil {
		return err
	}
	return w.write(extra)
}

// Close emits the central directory, the ZIP64 end-of-central-directory
// record and locator, and the classic end-of-central-directory record,
// unless Options.OmitCentralDirectory is set, in which case none of those
// are written. Either way, if the underlying writer implements io.Closer,
// Close then closes it. Close must be called exactly once.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true

	if !w.opts.OmitCentralDirectory {
		centralOffset := w.offset
		for _, rec := range w.records {
			if err := w.writeCentralRecord(rec); err != nil {
				return err
			}
		}
		centralSize := w.offset - centralOffset

		if err := w.writeZip64EndOfCentral(centralOffset, centralSize); err != nil {
			return err
		}
		if err := w.writeZip64Locator(centralOffset + centralSize); err != nil {
			return err
		}
		if err := w.writeEndOfCentral(); err != nil {
			return err
		}
	}

	if c, ok := w.dst.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("%w: closing archive: %w", errZipstream, err)
		}
	}
	return nil
}

func (w *Writer) writeCentralRecord(rec centralRecord) error {
	extra := encodeExtraCentral(rec.originalSize, rec.compressedSize, rec.localOffset, rec.extendedTS)

	hdr := make([]byte, 4+42)
	binary.LittleEndian.PutUint32(hdr[0:4], centralDirHeaderSig)
	binary.LittleEndian.PutUint16(hdr[4:6], versionNeededZip64)
	binary.LittleEndian.PutUint16(hdr[6:8], versionNeededZip64)
	binary.LittleEndian.PutUint16(hdr[8:10], 0)
	binary.LittleEndian.PutUint16(hdr[10:12], rec.method)
	binary.LittleEndian.PutUint16(hdr[12:14], rec.modTime)
	binary.LittleEndian.PutUint16(hdr[14:16], rec.modDate)
	binary.LittleEndian.PutUint32(hdr[16:20], rec.crc)
	binary.LittleEndian.PutUint32(hdr[20:24], zip64Sentinel32)
	binary.LittleEndian.PutUint32(hdr[24:28], zip64Sentinel32)
	binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(rec.name)))
	binary.LittleEndian.PutUint16(hdr[30:32], uint16(len(extra)))
	binary.LittleEndian.PutUint16(hdr[32:34], 0) // comment length
	binary.LittleEndian.PutUint16(hdr[34:36], 0) // disk number start
	binary.LittleEndian.PutUint16(hdr[36:38], 0) // internal attributes
	binary.LittleEndian.PutUint32(hdr[38:42], externalAttrsFor(rec))
	binary.LittleEndian.PutUint32(hdr[42:46], zip64Sentinel32)

	if err := w.write(hdr); err != nil {
		return err
	}
	if err := w.write([]byte(rec.name)); err != nil {
		return err
	}
	return w.write(extra)
}

// externalAttrsFor sets the MS-DOS directory attribute bit for directory
// entries, matching archive/zip's convention for cross-platform readers.
func externalAttrsFor(rec centralRecord) uint32 {
	if rec.isDir {
		return 0x10
	}
	return 0
}

func (w *Writer) writeZip64EndOfCentral(centralOffset, centralSize uint64) error {
	buf := make([]byte, 4+8+44)
	binary.LittleEndian.PutUint32(buf[0:4], zip64EndOfCentralSig)
	binary.LittleEndian.PutUint64(buf[4:12], 44)
	binary.LittleEndian.PutUint16(buf[12:14], versionNeededZip64)
	binary.LittleEndian.PutUint16(buf[14:16], versionNeededZip64)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(w.records)))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(len(w.records)))
	binary.LittleEndian.PutUint64(buf[40:48], centralSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralOffset)
	return w.write(buf)
}

func (w *Writer) writeZip64Locator(zip64EndOffset uint64) error {
	buf := make([]byte, 4+16)
	binary.LittleEndian.PutUint32(buf[0:4], 0x07064b50)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], zip64EndOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)
	return w.write(buf)
}

// writeEndOfCentral writes the classic end-of-central-directory record with
// every count, size and offset field set to its ZIP64 sentinel; the real
// values are in the ZIP64 end-of-central-directory record.
func (w *Writer) writeEndOfCentral() error {
	buf := make([]byte, 4+18)
	binary.LittleEndian.PutUint32(buf[0:4], endOfCentralDirSig)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], 0xffff)
	binary.LittleEndian.PutUint16(buf[10:12], 0xffff)
	binary.LittleEndian.PutUint32(buf[12:16], zip64Sentinel32)
	binary.LittleEndian.PutUint32(buf[16:20], zip64Sentinel32)
	binary.LittleEndian.PutUint16(buf[20:22], 0) // comment length
	return w.write(buf)
}

// Write is a convenience wrapper that builds a Writer over dst, writes
// every entry produced by entries, and closes the Writer. It stops and
// returns the first error yielded by entries or encountered while
// writing.
func Write(ctx context.Context, dst io.Writer, entries iter.Seq2[WriteEntry, error], opts Options) error {
	w := NewWriterOptions(dst, opts)
	for e, err := range entries {
		if err != nil {
			return err
		}
		if err := w.WriteEntry(ctx, e); err != nil {
			return err
		}
	}
	return w.Close(ctx)
}
