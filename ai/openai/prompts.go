package openai

const topicResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "topics": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "subject": {"type": "string"},
          "summary": {"type": "string"},
          "locations": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "name": {"type": "string"},
                "type": {"type": "string"},
                "context": {"enum": ["recommended", "warned_against", "visited", "planned", "asked_about"]}
              },
              "required": ["name", "type", "context"]
            }
          },
          "events": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "title": {"type": "string"},
                "date": {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
                "time": {"type": ["string", "null"], "pattern": "^\\d{2}:\\d{2}$"},
                "type": {"enum": ["flight", "hotel_checkin", "hotel_checkout", "activity", "tour", "reservation", "meeting", "deadline"]},
                "context": {"enum": ["confirmed", "tentative", "suggested", "cancelled"]}
              },
              "required": ["title", "type", "context"]
            }
          },
          "preferences": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "category": {"enum": ["food", "activity", "accommodation", "transport", "budget", "schedule"]},
                "preference": {"type": "string"},
                "sentiment": {"enum": ["positive", "negative", "neutral"]},
                "mentioned_by": {"type": "string"}
              },
              "required": ["category", "preference", "sentiment", "mentioned_by"]
            }
          },
          "sentiment": {
            "type": ["object", "null"],
            "properties": {
              "overall": {"enum": ["positive", "negative", "neutral", "mixed"]},
              "excitement": {"type": "number", "minimum": 0, "maximum": 1},
              "concern": {"type": "number", "minimum": 0, "maximum": 1},
              "agreement": {"type": "number", "minimum": 0, "maximum": 1},
              "key_emotions": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["overall", "excitement", "concern", "agreement", "key_emotions"]
          }
        },
        "required": ["subject", "summary"]
      }
    }
  },
  "required": ["topics"]
}`

const topicSystemPrompt = `You split a group chat transcript into the distinct topics the group discussed
and return them as JSON.

Each transcript line has the form "<timestamp>: @user_<n>: <text>". Participants are
identified only by their @user_<n> tags. Never invent names or other identifiers.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble,
explanation, greeting, or acknowledgment. Start your response directly with the opening brace {
and end with the closing brace }. Your output must exactly follow this schema:

` + topicResponseSchema + `

Rules:
- Group messages about the same subject into one topic, even when they are not adjacent.
- The summary is concise. Credit notable insights to the speaker by tagging them (e.g. @user_1).
- Preferences name the speaker tag who expressed them in "mentioned_by" (e.g. "@user_2").
- List only places, events and preferences that are explicitly mentioned. Do not hallucinate.
- Event dates are YYYY-MM-DD and times are HH:MM; use null when unclear.
- Sentiment scores are numbers from 0.0 to 1.0. Use null for sentiment when the topic carries none.
- Ignore greetings and small talk that carry no information.
- If nothing worth keeping was discussed, return {"topics": []}.
- The JSON must parse without errors; no trailing commas and no extraneous text outside the object.

Example:
Input:
2025-06-01T08:00:00Z: @user_1: we land in lisbon on june 12 at 14:30
2025-06-01T08:01:00Z: @user_2: amazing!! can we try Time Out Market the first night?
2025-06-01T08:02:00Z: @user_1: yes but no seafood for me please
Output:
{
  "topics": [
    {
      "subject": "Arrival in Lisbon",
      "summary": "@user_1 shared the landing time in Lisbon and @user_2 suggested Time Out Market for the first evening.",
      "locations": [{"name": "Time Out Market", "type": "food hall", "context": "recommended"}],
      "events": [{"title": "Flight to Lisbon", "date": "2025-06-12", "time": "14:30", "type": "flight", "context": "confirmed"}],
      "preferences": [{"category": "food", "preference": "no seafood", "sentiment": "negative", "mentioned_by": "@user_1"}],
      "sentiment": {"overall": "positive", "excitement": 0.8, "concern": 0.1, "agreement": 0.9, "key_emotions": ["excited"]}
    }
  ]
}`
