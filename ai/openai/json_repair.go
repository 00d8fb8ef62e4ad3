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

package openai

import (
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// cleanResponse strips markdown code fences and repairs common JSON
// mistakes in a model response.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	return repairJSON(s)
}

// repairJSON attempts to fix common JSON formatting issues from LLM responses:
// missing opening quotes before keys, and trailing commas before a closing
// brace or bracket.
func repairJSON(s string) string {
	// Pattern: after { or , followed by optional whitespace, then a word followed by ":
	// Example: `, subject":` -> `, "subject":`
	in := []rune(s)
	fixed := make([]rune, 0, len(in)+16)

	inString := false
	for i := 0; i < len(in); {
		ch := in[i]
		if inString {
			fixed = append(fixed, ch)
			i++
			if ch == '\\' && i < len(in) {
				fixed = append(fixed, in[i])
				i++
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			fixed = append(fixed, ch)
			i++
		case '{', ',':
			fixed = append(fixed, ch)
			i++
			for i < len(in) && isSpace(in[i]) {
				fixed = append(fixed, in[i])
				i++
			}
			if i >= len(in) || !isLetter(in[i]) {
				continue
			}

			keyStart := i
			for i < len(in) && (isLetter(in[i]) || in[i] == '_') {
				i++
			}
			if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
				// Add the missing opening quote and keep the closing one
				fixed = append(fixed, '"')
				fixed = append(fixed, in[keyStart:i+1]...)
				i++
				continue
			}
			fixed = append(fixed, in[keyStart:i]...)
		default:
			fixed = append(fixed, ch)
			i++
		}
	}

	return trailingComma.ReplaceAllString(string(fixed), "$1")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
