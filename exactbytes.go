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
	"fmt"
	"io"
)

// exactBytesReader wraps r and asserts that reading it to completion
// yields exactly size bytes. It fails with ErrByteCountMismatch the moment
// more than size bytes would be returned, and on EOF if fewer than size
// bytes were returned.
type exactBytesReader struct {
	r    io.Reader
	size uint64
	read uint64
}

func newExactBytesReader(r io.Reader, size uint64) *exactBytesReader {
	return &exactBytesReader{r: r, size: size}
}

func (e *exactBytesReader) Read(p []byte) (int, error) {
	remaining := e.size - e.read
	if uint64(len(p)) > remaining {
		// Ask the wrapped reader for at most one byte more than what's
		// left, so an over-long underlying stream is caught on that extra
		// byte rather than silently absorbed into p.
		p = p[:remaining+1]
	}

	n, err := e.r.Read(p)
	e.read += uint64(n)

	if e.read > e.size {
		return n, fmt.Errorf("%w: %w: got at least %d bytes, want %d", errZipstream, ErrByteCountMismatch, e.read, e.size)
	}
	if err == io.EOF {
		if e.read < e.size {
			return n, fmt.Errorf("%w: %w: got %d bytes, want %d", errZipstream, ErrByteCountMismatch, e.read, e.size)
		}
		return n, io.EOF
	}
	if err != nil {
		return n, fmt.Errorf("%w: reading entry body: %w", errZipstream, err)
	}
	return n, nil
}

// exactBytesWriter wraps w and asserts that exactly size bytes are written
// to it before Close is called.
type exactBytesWriter struct {
	w       io.Writer
	size    uint64
	written uint64
}

func newExactBytesWriter(w io.Writer, size uint64) *exactBytesWriter {
	return &exactBytesWriter{w: w, size: size}
}

func (e *exactBytesWriter) Write(p []byte) (int, error) {
	if e.written+uint64(len(p)) > e.size {
		return 0, fmt.Errorf("%w: %w: writing would exceed declared size %d", errZipstream, ErrByteCountMismatch, e.size)
	}
	n, err := e.w.Write(p)
	e.written += uint64(n)
	if err != nil {
		return n, fmt.Errorf("%w: writing entry body: %w", errZipstream, err)
	}
	return n, nil
}

// Close checks that exactly size bytes were written. It does not close the
// underlying writer.
func (e *exactBytesWriter) Close() error {
	if e.written != e.size {
		return fmt.Errorf("%w: %w: wrote %d bytes, want %d", errZipstream, ErrByteCountMismatch, e.written, e.size)
	}
	return nil
}
