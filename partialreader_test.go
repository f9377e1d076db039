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
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// chunkSliceSource is a ChunkSource that replays a fixed list of chunks,
// used to exercise the Default variant's leftover-buffering behavior.
type chunkSliceSource struct {
	chunks [][]byte
	i      int
}

func (s *chunkSliceSource) NextChunk(ctx context.Context) ([]byte, error) {
	if s.i >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func TestReadAmountBYOB(t *testing.T) {
	t.Parallel()

	pr := FromReader(bytes.NewReader([]byte("hello world")))

	got, err := pr.ReadAmount(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("hello"), got); diff != "" {
		t.Errorf("ReadAmount mismatch (-want +got):\n%s", diff)
	}

	rest, err := pr.ReadAmount(context.Background(), 100)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte(" world"), rest); diff != "" {
		t.Errorf("ReadAmount mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAmountDefaultLeftover(t *testing.T) {
	t.Parallel()

	pr := FromChunkSource(&chunkSliceSource{chunks: [][]byte{[]byte("abcdef"), []byte("ghij")}})

	got, err := pr.ReadAmount(context.Background(), 3)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("abc"), got); diff != "" {
		t.Errorf("first ReadAmount mismatch (-want +got):\n%s", diff)
	}

	got, err = pr.ReadAmount(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("defgh"), got); diff != "" {
		t.Errorf("second ReadAmount mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAmountStrictFailsShort(t *testing.T) {
	t.Parallel()

	pr := FromReader(bytes.NewReader([]byte("ab")))
	_, err := pr.ReadAmountStrict(context.Background(), 5)
	if !errors.Is(err, ErrUnexpectedEnd) {
		t.Fatalf("ReadAmountStrict error = %v, want ErrUnexpectedEnd", err)
	}
}

func TestSkipAmount(t *testing.T) {
	t.Parallel()

	pr := FromReader(bytes.NewReader([]byte("0123456789")))
	if err := pr.SkipAmount(context.Background(), 4); err != nil {
		t.Fatalf("SkipAmount: %v", err)
	}
	got, err := pr.ReadAmount(context.Background(), 100)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("456789"), got); diff != "" {
		t.Errorf("remaining bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamAmountReadToEOF(t *testing.T) {
	t.Parallel()

	pr := FromReader(bytes.NewReader([]byte("0123456789")))
	br, err := pr.StreamAmount(context.Background(), 4)
	if err != nil {
		t.Fatalf("StreamAmount: %v", err)
	}

	got, err := io.ReadAll(br)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if diff := cmp.Diff([]byte("0123"), got); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if !br.Consumed() {
		t.Error("Consumed() = false after reading to EOF")
	}

	rest, err := pr.ReadAmount(context.Background(), 100)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("456789"), rest); diff != "" {
		t.Errorf("remaining bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamAmountCloseSkipsRemainder(t *testing.T) {
	t.Parallel()

	pr := FromReader(bytes.NewReader([]byte("0123456789")))
	br, err := pr.StreamAmount(context.Background(), 4)
	if err != nil {
		t.Fatalf("StreamAmount: %v", err)
	}

	buf := make([]byte, 1)
	if _, err := br.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := br.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !br.Consumed() {
		t.Error("Consumed() = false after Close")
	}

	select {
	case <-br.Done():
	default:
		t.Error("Done() channel not closed after Close")
	}

	rest, err := pr.ReadAmount(context.Background(), 100)
	if err != nil {
		t.Fatalf("ReadAmount: %v", err)
	}
	if diff := cmp.Diff([]byte("456789"), rest); diff != "" {
		t.Errorf("remaining bytes mismatch (-want +got):\n%s", diff)
	}
}
