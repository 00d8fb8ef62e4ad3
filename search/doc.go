// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search ranks stored topics against a query vector.
//
// The Retriever scopes a search to a group and the community groups it is
// related to, drops candidates that fail a caller predicate, and orders the
// rest by ascending cosine distance. Feature helpers (Locations, Events,
// Preferences, GroupMood, Recommendations) build on it, each decoding one
// structured sub-field and de-duplicating by a feature-specific key.
// Topics whose stored sub-field does not parse are skipped for that feature.
package search
