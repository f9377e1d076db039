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
	"encoding/binary"
	"fmt"
	"time"
)

const (
	extraTagZip64   = 0x0001
	extraTagExtTime = 0x5455
)

// zip64Local is the decoded payload of a 0x0001 extra record found in a
// local file header.
type zip64Local struct {
	OriginalSize   uint64
	CompressedSize uint64
}

// zip64Central is the decoded payload of a 0x0001 extra record found in a
// central directory header.
type zip64Central struct {
	OriginalSize      uint64
	CompressedSize    uint64
	LocalHeaderOffset uint64
}

// decodeExtra parses the extra field area of a local file header, looking
// for the ZIP64 and extended-timestamp records. Unknown tags are skipped.
func decodeExtra(b []byte) (*zip64Local, *ExtendedTimestamps, error) {
	var zip64 *zip64Local
	var ts *ExtendedTimestamps

	for len(b) >= 4 {
		tag := binary.LittleEndian.Uint16(b[0:2])
		length := int(binary.LittleEndian.Uint16(b[2:4]))
		if length > len(b)-4 {
			return nil, nil, fmt.Errorf("%w: %w: record of length %d overruns %d remaining bytes", errZipstream, ErrInvalidExtraField, length, len(b)-4)
		}
		payload := b[4 : 4+length]
		b = b[4+length:]

		switch tag {
		case extraTagZip64:
			if len(payload) < 16 {
				return nil, nil, fmt.Errorf("%w: %w: zip64 local record too short", errZipstream, ErrInvalidExtraField)
			}
			zip64 = &zip64Local{
				OriginalSize:   binary.LittleEndian.Uint64(payload[0:8]),
				CompressedSize: binary.LittleEndian.Uint64(payload[8:16]),
			}
		case extraTagExtTime:
			var err error
			ts, err = decodeExtTime(payload)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return zip64, ts, nil
}

// decodeExtraCentral parses the extra field area of a central directory
// header, which additionally may carry a local-file-header offset in its
// ZIP64 record.
func decodeExtraCentral(b []byte) (*zip64Central, *ExtendedTimestamps, error) {
	var zip64 *zip64Central
	var ts *ExtendedTimestamps

	for len(b) >= 4 {
		tag := binary.LittleEndian.Uint16(b[0:2])
		length := int(binary.LittleEndian.Uint16(b[2:4]))
		if length > len(b)-4 {
			return nil, nil, fmt.Errorf("%w: %w: record of length %d overruns %d remaining bytes", errZipstream, ErrInvalidExtraField, length, len(b)-4)
		}
		payload := b[4 : 4+length]
		b = b[4+length:]

		switch tag {
		case extraTagZip64:
			if len(payload) < 16 {
				return nil, nil, fmt.Errorf("%w: %w: zip64 central record too short", errZipstream, ErrInvalidExtraField)
			}
			z := &zip64Central{
				OriginalSize:   binary.LittleEndian.Uint64(payload[0:8]),
				CompressedSize: binary.LittleEndian.Uint64(payload[8:16]),
			}
			if len(payload) >= 24 {
				z.LocalHeaderOffset = binary.LittleEndian.Uint64(payload[16:24])
			}
			zip64 = z
		case extraTagExtTime:
			var err error
			ts, err = decodeExtTime(payload)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return zip64, ts, nil
}

// decodeExtTime decodes a 0x5455 extended timestamp record payload.
func decodeExtTime(payload []byte) (*ExtendedTimestamps, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: %w: extended timestamp record has no flag byte", errZipstream, ErrInvalidExtraField)
	}
	flags := payload[0]
	payload = payload[1:]

	ts := &ExtendedTimestamps{}
	readStamp := func() (*time.Time, error) {
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: %w: extended timestamp record truncated", errZipstream, ErrInvalidExtraField)
		}
		secs := int32(binary.LittleEndian.Uint32(payload[0:4]))
		payload = payload[4:]
		t := time.Unix(int64(secs), 0).UTC()
		return &t, nil
	}

	if flags&extTimeFlagModify != 0 {
		t, err := readStamp()
		if err != nil {
			return nil, err
		}
		ts.Modify = t
	}
	if flags&extTimeFlagAccess != 0 {
		t, err := readStamp()
		if err != nil {
			return nil, err
		}
		ts.Access = t
	}
	if flags&extTimeFlagCreate != 0 {
		t, err := readStamp()
		if err != nil {
			return nil, err
		}
		ts.Create = t
	}
	return ts, nil
}

// encodeExtraLocal builds the extra field area for a local file header:
// an unconditional ZIP64 record followed by an extended-timestamp record
// if ts has any field set.
func encodeExtraLocal(originalSize, compressedSize uint64, ts *ExtendedTimestamps) []byte {
	out := make([]byte, 0, 20+16)

	zip64 := make([]byte, 4+16)
	binary.LittleEndian.PutUint16(zip64[0:2], extraTagZip64)
	binary.LittleEndian.PutUint16(zip64[2:4], 16)
	binary.LittleEndian.PutUint64(zip64[4:12], originalSize)
	binary.LittleEndian.PutUint64(zip64[12:20], compressedSize)
	out = append(out, zip64...)

	if extTime := encodeExtTime(ts); extTime != nil {
		out = append(out, extTime...)
	}
	return out
}

// encodeExtraCentral builds the extra field area for a central directory
// header. The ZIP64 record includes the local-file-header offset.
func encodeExtraCentral(originalSize, compressedSize, localOffset uint64, ts *ExtendedTimestamps) []byte {
	out := make([]byte, 0, 28+16)

	zip64 := make([]byte, 4+24)
	binary.LittleEndian.PutUint16(zip64[0:2], extraTagZip64)
	binary.LittleEndian.PutUint16(zip64[2:4], 24)
	binary.LittleEndian.PutUint64(zip64[4:12], originalSize)
	binary.LittleEndian.PutUint64(zip64[12:20], compressedSize)
	binary.LittleEndian.PutUint64(zip64[20:28], localOffset)
	out = append(out, zip64...)

	if extTime := encodeExtTime(ts); extTime != nil {
		out = append(out, extTime...)
	}
	return out
}

// encodeExtTime builds a 0x5455 record for the set fields of ts, or nil if
// ts is nil or has no field set.
func encodeExtTime(ts *ExtendedTimestamps) []byte {
	if ts == nil {
		return nil
	}

	var flags byte
	var stamps []int32
	if ts.Modify != nil {
		flags |= extTimeFlagModify
		stamps = append(stamps, int32(ts.Modify.Unix()))
	}
	if ts.Access != nil {
		flags |= extTimeFlagAccess
		stamps = append(stamps, int32(ts.Access.Unix()))
	}
	if ts.Create != nil {
		flags |= extTimeFlagCreate
		stamps = append(stamps, int32(ts.Create.Unix()))
	}
	if flags == 0 {
		return nil
	}

	payloadLen := 1 + 4*len(stamps)
	out := make([]byte, 4+payloadLen)
	binary.LittleEndian.PutUint16(out[0:2], extraTagExtTime)
	binary.LittleEndian.PutUint16(out[2:4], uint16(payloadLen))
	out[4] = flags
	off := 5
	for _, s := range stamps {
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(s))
		off += 4
	}
	return out
}
