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

import "errors"

// errZipstream is the base error for all zipstream errors.
var errZipstream = errors.New("zipstream")

var (
	// ErrUnexpectedEnd indicates the upstream source closed mid-structure.
	ErrUnexpectedEnd = errors.New("unexpected end of stream")

	// ErrBadSignature indicates a local file header's 4-byte signature
	// matched neither the local-file-header nor central-directory-file-header
	// signature.
	ErrBadSignature = errors.New("bad signature")

	// ErrUnsupportedVersion indicates a local file header declares a
	// version-needed greater than this package supports.
	ErrUnsupportedVersion = errors.New("unsupported version needed to extract")

	// ErrUnsupportedFlag indicates a local file header sets a general
	// purpose bit flag this package does not support (encryption, data
	// descriptor, or patch data).
	ErrUnsupportedFlag = errors.New("unsupported general purpose flag")

	// ErrUnknownCompressionMethod indicates a compression method other
	// than stored (0) or deflate (8).
	ErrUnknownCompressionMethod = errors.New("unknown compression method")

	// ErrInvalidExtraField indicates a TLV record in the extra field area
	// declares a length that overruns the area.
	ErrInvalidExtraField = errors.New("invalid extra field")

	// ErrBodyAlreadyUsed indicates a second call to Open or Autodrain on
	// the same Entry.
	ErrBodyAlreadyUsed = errors.New("entry body already opened or drained")

	// ErrBodyNotConsumed indicates the reader advanced to the next entry
	// without the previous entry's body being opened or drained.
	ErrBodyNotConsumed = errors.New("entry body not consumed before advancing")

	// ErrByteCountMismatch indicates a declared entry size did not match
	// the actual number of bytes piped through an exact-bytes transform.
	ErrByteCountMismatch = errors.New("byte count does not match declared size")

	// ErrFilenameTooLong indicates a filename is 2^16 bytes or longer.
	ErrFilenameTooLong = errors.New("filename too long")

	// ErrChecksumMismatch indicates a decoded file body's CRC-32 does not
	// match the value declared in its local file header.
	ErrChecksumMismatch = errors.New("CRC-32 checksum mismatch")
)
