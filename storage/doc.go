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

// Package storage provides the storage abstraction layer for tripkb.
//
// It defines repository interfaces that decouple the knowledge store from
// business logic, and the binary encoding of every persisted record.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - MessageRepository: chat messages delivered by the transport
//   - GroupRepository: managed groups, community keys and watermarks
//   - TopicRepository: extracted topics, message links, similarity search
//
// Topic identifiers are content derived (core.TopicID), so writing the
// same chunk twice replaces records instead of adding new ones.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
