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

// Package zipstream implements streaming encoding and decoding of ZIP
// archives: producing and consuming the ZIP container format as a
// forward-only byte stream, without requiring random access to the
// underlying source or sink.
//
// Archives are always written with ZIP64 extra fields so that entries of
// any size can be streamed without knowing the final archive layout ahead
// of time. Supported compression methods are "stored" (0) and "deflate"
// (8); encryption, data descriptors, and patch entries are not supported.
// See https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT for the
// wire format this package implements.
//
// Unless otherwise informed, clients should not assume implementations in
// this package are safe for parallel execution.
package zipstream
