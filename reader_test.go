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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeTestArchive(t *testing.T, entries []WriteEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()
	for _, e := range entries {
		if err := w.WriteEntry(ctx, e); err != nil {
			t.Fatalf("WriteEntry(%q): %v", e.Name, err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTripStoredAndDeflated(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	storedContent := []byte("this is stored verbatim")
	originalContent := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbbbbbbbbcccc")

	compressed, crc := deflateForTest(t, originalContent)

	entries := []WriteEntry{
		{
			Kind:    EntryDirectory,
			Name:    "dir/",
			ModTime: modTime,
		},
		{
			Kind:    EntryFile,
			Name:    "dir/stored.txt",
			ModTime: modTime,
			Body:    Stored(bytes.NewReader(storedContent), uint64(len(storedContent)), crc32.ChecksumIEEE(storedContent)),
		},
		{
			Kind:    EntryFile,
			Name:    "dir/deflated.txt",
			ModTime: modTime,
			Body:    Deflated(bytes.NewReader(compressed), uint64(len(originalContent)), uint64(len(compressed)), crc),
		},
	}

	archive := writeTestArchive(t, entries)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var got []*Entry
	var bodies [][]byte
	for e, err := range r.Entries(ctx) {
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		got = append(got, e)

		if e.IsDir() {
			continue
		}
		body, err := e.Open(ctx)
		if err != nil {
			t.Fatalf("Open(%q): %v", e.Name, err)
		}
		content, err := io.ReadAll(body)
		if err != nil {
			t.Fatalf("reading body of %q: %v", e.Name, err)
		}
		if err := body.Close(); err != nil {
			t.Fatalf("Close body of %q: %v", e.Name, err)
		}
		bodies = append(bodies, content)
	}

	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if diff := cmp.Diff("dir/", got[0].Name); diff != "" {
		t.Errorf("entry[0].Name mismatch (-want +got):\n%s", diff)
	}
	if !got[0].IsDir() {
		t.Errorf("entry[0].IsDir() = false, want true")
	}

	wantBodies := [][]byte{storedContent, originalContent}
	if diff := cmp.Diff(wantBodies, bodies); diff != "" {
		t.Errorf("body content mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(uint64(len(storedContent)), got[1].OriginalSize); diff != "" {
		t.Errorf("stored entry size mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(uint64(len(originalContent)), got[2].OriginalSize); diff != "" {
		t.Errorf("deflated entry original size mismatch (-want +got):\n%s", diff)
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	t.Parallel()

	content := []byte("some bytes")
	entries := []WriteEntry{
		{
			Kind:    EntryFile,
			Name:    "bad.txt",
			ModTime: time.Now(),
			Body:    Stored(bytes.NewReader(content), uint64(len(content)), 0xdeadbeef),
		},
	}
	archive := writeTestArchive(t, entries)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	e, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	body, err := e.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = io.ReadAll(body)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("ReadAll error = %v, want ErrChecksumMismatch", err)
	}
}

func TestNextFailsWithoutConsumingPreviousBody(t *testing.T) {
	t.Parallel()

	content := []byte("abc")
	entries := []WriteEntry{
		{Kind: EntryFile, Name: "a.txt", ModTime: time.Now(), Body: Stored(bytes.NewReader(content), 3, crc32.ChecksumIEEE(content))},
		{Kind: EntryFile, Name: "b.txt", ModTime: time.Now(), Body: Stored(bytes.NewReader(content), 3, crc32.ChecksumIEEE(content))},
	}
	archive := writeTestArchive(t, entries)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrBodyNotConsumed) {
		t.Fatalf("second Next error = %v, want ErrBodyNotConsumed", err)
	}
}

func TestEntryAutodrainAdvances(t *testing.T) {
	t.Parallel()

	content := []byte("skip me entirely")
	entries := []WriteEntry{
		{Kind: EntryFile, Name: "skip.txt", ModTime: time.Now(), Body: Stored(bytes.NewReader(content), uint64(len(content)), crc32.ChecksumIEEE(content))},
		{Kind: EntryFile, Name: "next.txt", ModTime: time.Now(), Body: Stored(bytes.NewReader([]byte("hi")), 2, crc32.ChecksumIEEE([]byte("hi")))},
	}
	archive := writeTestArchive(t, entries)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	first, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if err := first.Autodrain(ctx); err != nil {
		t.Fatalf("Autodrain: %v", err)
	}

	second, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if second.Name != "next.txt" {
		t.Errorf("second entry name = %q, want %q", second.Name, "next.txt")
	}
}

func TestBodyAlreadyUsedRejectsSecondOpen(t *testing.T) {
	t.Parallel()

	content := []byte("abc")
	entries := []WriteEntry{
		{Kind: EntryFile, Name: "a.txt", ModTime: time.Now(), Body: Stored(bytes.NewReader(content), 3, crc32.ChecksumIEEE(content))},
	}
	archive := writeTestArchive(t, entries)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	e, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	body, err := e.Open(ctx)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer body.Close()

	if _, err := e.Open(ctx); !errors.Is(err, ErrBodyAlreadyUsed) {
		t.Fatalf("second Open error = %v, want ErrBodyAlreadyUsed", err)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	t.Parallel()

	entries := []WriteEntry{
		{Kind: EntryDirectory, Name: "d/", ModTime: time.Now()},
	}
	archive := writeTestArchive(t, entries)

	// versionNeeded occupies bytes [4:6] of the local file header, right
	// after the 4-byte signature. 63 is comfortably above the ZIP64
	// version (45) this reader accepts.
	binary.LittleEndian.PutUint16(archive[4:6], 63)

	ctx := context.Background()
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, err = r.Next(ctx)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Next error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestTruncatedBodyFailsByteCountMismatch(t *testing.T) {
	t.Parallel()

	content := []byte("twelve bytes")
	var buf bytes.Buffer
	w := NewWriterOptions(&buf, Options{OmitCentralDirectory: true})
	ctx := context.Background()
	err := w.WriteEntry(ctx, WriteEntry{
		Kind:    EntryFile,
		Name:    "only.txt",
		ModTime: time.Now(),
		Body:    Stored(bytes.NewReader(content), uint64(len(content)), crc32.ChecksumIEEE(content)),
	})
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	archive := buf.Bytes()

	// The fixed header's size fields hold the ZIP64 sentinel; the reader
	// takes the real compressedSize from the ZIP64 extra record, which
	// follows the 30-byte header and the name. Within that record it is
	// the second u64, after the 4-byte tag/length prefix and originalSize.
	// Inflate it past what the archive actually holds (this is the sole,
	// OmitCentralDirectory entry, so nothing follows the body) so the
	// underlying stream runs out before the declared count is satisfied.
	off := 4 + localFileHeaderFixedLen + len("only.txt") + 4 + 8
	binary.LittleEndian.PutUint64(archive[off:off+8], uint64(len(content))+50)

	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	e, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	body, err := e.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = io.ReadAll(body)
	if !errors.Is(err, ErrByteCountMismatch) {
		t.Fatalf("ReadAll error = %v, want ErrByteCountMismatch", err)
	}
}
