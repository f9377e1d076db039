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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestExtraLocalRoundTrip(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := &ExtendedTimestamps{Modify: &mod}

	encoded := encodeExtraLocal(1234, 5678, ts)
	zip64, gotTS, err := decodeExtra(encoded)
	if err != nil {
		t.Fatalf("decodeExtra: %v", err)
	}

	want := &zip64Local{OriginalSize: 1234, CompressedSize: 5678}
	if diff := cmp.Diff(want, zip64); diff != "" {
		t.Errorf("zip64 record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ts, gotTS, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("extended timestamp mismatch (-want +got):\n%s", diff)
	}
}

func TestExtraCentralRoundTrip(t *testing.T) {
	t.Parallel()

	encoded := encodeExtraCentral(42, 24, 100, nil)
	zip64, ts, err := decodeExtraCentral(encoded)
	if err != nil {
		t.Fatalf("decodeExtraCentral: %v", err)
	}

	want := &zip64Central{OriginalSize: 42, CompressedSize: 24, LocalHeaderOffset: 100}
	if diff := cmp.Diff(want, zip64); diff != "" {
		t.Errorf("zip64 record mismatch (-want +got):\n%s", diff)
	}
	if ts != nil {
		t.Errorf("extended timestamp = %+v, want nil", ts)
	}
}

func TestExtraAllThreeTimestamps(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cre := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	ts := &ExtendedTimestamps{Modify: &mod, Access: &acc, Create: &cre}

	encoded := encodeExtTime(ts)
	got, err := decodeExtTime(encoded[4:])
	if err != nil {
		t.Fatalf("decodeExtTime: %v", err)
	}
	if diff := cmp.Diff(ts, got); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeExtraInvalidLength(t *testing.T) {
	t.Parallel()

	b := []byte{0x01, 0x00, 0xff, 0xff} // tag=1, length=65535, no payload
	_, _, err := decodeExtra(b)
	if !errors.Is(err, ErrInvalidExtraField) {
		t.Fatalf("decodeExtra error = %v, want ErrInvalidExtraField", err)
	}
}

func TestEncodeExtTimeNilWhenUnset(t *testing.T) {
	t.Parallel()

	if got := encodeExtTime(nil); got != nil {
		t.Errorf("encodeExtTime(nil) = %v, want nil", got)
	}
	if got := encodeExtTime(&ExtendedTimestamps{}); got != nil {
		t.Errorf("encodeExtTime(empty) = %v, want nil", got)
	}
}
