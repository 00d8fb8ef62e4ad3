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

package core

import "errors"

var (
	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidTopic indicates a Topic failed validation.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidGroup indicates a Group failed validation.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrEmptySubject indicates the topic Subject field is empty.
	ErrEmptySubject = errors.New("subject cannot be empty")

	// ErrInvalidEnum indicates a field holds a value outside its allowed set.
	ErrInvalidEnum = errors.New("value not in allowed set")

	// ErrScoreOutOfRange indicates a sentiment score outside [0,1].
	ErrScoreOutOfRange = errors.New("score must be between 0 and 1")
)
