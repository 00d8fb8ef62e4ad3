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

package badger

import "errors"

// Repositories bundles the repositories sharing one backend.
type Repositories struct {
	Backend  *Backend
	Messages *MessageRepository
	Groups   *GroupRepository
	Topics   *TopicRepository
}

// NewRepositories creates every repository on top of backend.
func NewRepositories(backend *Backend) (*Repositories, error) {
	messages, err := NewMessageRepository(backend)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Backend:  backend,
		Messages: messages,
		Groups:   NewGroupRepository(backend),
		Topics:   NewTopicRepository(backend),
	}, nil
}

// NewMemoryRepositories creates repositories over an in-memory backend.
// Intended for tests.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	repos, err := NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repos, nil
}

// Close closes the repositories and then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Topics.Close(),
		r.Groups.Close(),
		r.Messages.Close(),
		r.Backend.Close(),
	)
}
