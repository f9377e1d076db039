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
	"sync"

	"github.com/klauspost/compress/flate"
)

// We use github.com/klauspost/compress/flate instead of the standard
// compress/flate because the latter's documentation says it may read
// beyond the end of the DEFLATE stream, which would desynchronize the
// Partial Reader's position relative to the archive's next frame.
var deflateReaderPool sync.Pool

// newDeflateDecoder wraps r, which must contain exactly one raw DEFLATE
// stream, as an io.ReadCloser of the decompressed bytes.
func newDeflateDecoder(r io.Reader) io.ReadCloser {
	if fr, ok := deflateReaderPool.Get().(flate.Resetter); ok {
		if err := fr.Reset(r, nil); err == nil {
			return &pooledDeflateReader{fr: fr.(io.ReadCloser)}
		}
	}
	return &pooledDeflateReader{fr: flate.NewReader(r)}
}

type pooledDeflateReader struct {
	fr io.ReadCloser
}

func (p *pooledDeflateReader) Read(b []byte) (int, error) {
	n, err := p.fr.Read(b)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: deflate: %w", errZipstream, err)
	}
	return n, err
}

func (p *pooledDeflateReader) Close() error {
	err := p.fr.Close()
	deflateReaderPool.Put(p.fr)
	p.fr = nil
	if err != nil {
		return fmt.Errorf("%w: deflate: %w", errZipstream, err)
	}
	return nil
}

// newDeflateEncoder returns a raw DEFLATE compressor at the given level
// writing to w. Nothing in this module calls it: the CLI's create
// subcommand calls flate.NewWriter directly, and the core Writer never
// compresses entry bodies itself.
func newDeflateEncoder(w io.Writer, level int) (*flate.Writer, error) {
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		return nil, fmt.Errorf("%w: deflate: %w", errZipstream, err)
	}
	return fw, nil
}
