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

import (
	"fmt"
	"slices"
)

var (
	locationContexts = []string{
		LocationRecommended, LocationWarnedAgainst, LocationVisited, LocationPlanned, LocationAskedAbout,
	}
	eventTypes = []string{
		"flight", "hotel_checkin", "hotel_checkout", "activity", "tour", "reservation", "meeting", "deadline",
	}
	eventContexts        = []string{"confirmed", "tentative", "suggested", "cancelled"}
	preferenceCategories = []string{"food", "activity", "accommodation", "transport", "budget", "schedule"}
	preferenceFeelings   = []string{"positive", "negative", "neutral"}
	overallSentiments    = []string{"positive", "negative", "neutral", "mixed"}
)

// ValidateMessage checks the fields every stored message must carry.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidMessage)
	}
	if msg.GroupID == "" {
		return fmt.Errorf("%w: empty group id", ErrInvalidMessage)
	}
	if msg.SenderID == "" {
		return fmt.Errorf("%w: empty sender id", ErrInvalidMessage)
	}
	if msg.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidMessage)
	}
	return nil
}

// ValidateGroup checks a group before it is stored.
func ValidateGroup(group *Group) error {
	if group == nil {
		return fmt.Errorf("%w: group is nil", ErrInvalidGroup)
	}
	if group.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidGroup)
	}
	return nil
}

// ValidateTopic checks the enumerations and score ranges of an extracted topic.
func ValidateTopic(topic *Topic) error {
	if topic == nil {
		return fmt.Errorf("%w: topic is nil", ErrInvalidTopic)
	}
	if topic.Subject == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, ErrEmptySubject)
	}
	for _, l := range topic.Locations {
		if !slices.Contains(locationContexts, l.Context) {
			return fmt.Errorf("%w: location context %q: %w", ErrInvalidTopic, l.Context, ErrInvalidEnum)
		}
	}
	for _, e := range topic.Events {
		if !slices.Contains(eventTypes, e.Type) {
			return fmt.Errorf("%w: event type %q: %w", ErrInvalidTopic, e.Type, ErrInvalidEnum)
		}
		if !slices.Contains(eventContexts, e.Context) {
			return fmt.Errorf("%w: event context %q: %w", ErrInvalidTopic, e.Context, ErrInvalidEnum)
		}
	}
	for _, p := range topic.Preferences {
		if !slices.Contains(preferenceCategories, p.Category) {
			return fmt.Errorf("%w: preference category %q: %w", ErrInvalidTopic, p.Category, ErrInvalidEnum)
		}
		if !slices.Contains(preferenceFeelings, p.Sentiment) {
			return fmt.Errorf("%w: preference sentiment %q: %w", ErrInvalidTopic, p.Sentiment, ErrInvalidEnum)
		}
	}
	if s := topic.Sentiment; s != nil {
		if !slices.Contains(overallSentiments, s.Overall) {
			return fmt.Errorf("%w: overall sentiment %q: %w", ErrInvalidTopic, s.Overall, ErrInvalidEnum)
		}
		for _, score := range []float64{s.Excitement, s.Concern, s.Agreement} {
			if !IsValidScore(score) {
				return fmt.Errorf("%w: %w: %v", ErrInvalidTopic, ErrScoreOutOfRange, score)
			}
		}
	}
	return nil
}

// IsValidScore reports whether a sentiment score is within [0,1].
func IsValidScore(score float64) bool {
	return score >= 0 && score <= 1
}
