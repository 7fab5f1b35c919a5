package transcript

import (
	"math"
	"strconv"
	"strings"
)

// Type-tag discriminators used across the known transcript record shapes.
const (
	typeSessionMeta  = "session_meta"
	typeResponseItem = "response_item"
	typeMessage      = "message"
	typeInputText    = "input_text"
	typeToolCall     = "toolCall"
)

// hasType reports whether obj carries a "type" field equal to want.
func hasType(obj map[string]any, want string) bool {
	t, ok := obj["type"].(string)
	return ok && t == want
}

type recordKind int

const (
	recordUnrecognized recordKind = iota
	recordSessionMeta
	recordEnveloped
	recordDirect
)

// classify inspects the discriminator fields of a record once; all further
// handling dispatches on the result instead of re-probing fields.
func classify(obj map[string]any) recordKind {
	switch {
	case hasType(obj, typeSessionMeta):
		return recordSessionMeta
	case hasType(obj, typeResponseItem):
		if payload, ok := obj["payload"].(map[string]any); ok && hasType(payload, typeMessage) {
			return recordEnveloped
		}
		return recordUnrecognized
	default:
		return recordDirect
	}
}

// ExtractMessage converts one decoded transcript record into a message turn.
// It is the single turn-numbering rule: the indexer and the file inspector
// both enumerate turns through this function, so a record counts as a turn
// in one place iff it counts in the other. Tool-call-only records count as
// turns even when they coerce to no text.
func ExtractMessage(obj map[string]any) (ParsedMessage, bool) {
	toolCall := hasToolCall(obj)

	if msg, ok := messageFromRecord(obj); ok {
		msg.HasToolCall = toolCall
		return msg, true
	}

	if toolCall {
		return ParsedMessage{
			Role:        extractRole(obj),
			Timestamp:   extractTimestamp(obj),
			HasToolCall: true,
		}, true
	}

	return ParsedMessage{}, false
}

// messageFromRecord applies the shape-specific unwrapping rules and returns
// a message with non-empty text, or false.
func messageFromRecord(obj map[string]any) (ParsedMessage, bool) {
	switch classify(obj) {
	case recordSessionMeta, recordUnrecognized:
		return ParsedMessage{}, false

	case recordEnveloped:
		payload := obj["payload"].(map[string]any)
		msg, ok := messageFromObject(payload)
		if !ok {
			return ParsedMessage{}, false
		}
		if msg.Timestamp == "" {
			msg.Timestamp = extractTimestamp(obj)
		}
		return msg, true
	}

	if inner, present := obj["message"]; present {
		if innerObj, ok := inner.(map[string]any); ok {
			msg, ok := messageFromObject(innerObj)
			if !ok {
				return ParsedMessage{}, false
			}
			if msg.Role == "" {
				if role, ok := obj["role"].(string); ok {
					msg.Role = normalizeRole(role)
				}
			}
			if msg.Timestamp == "" {
				msg.Timestamp = extractTimestamp(obj)
			}
			return msg, true
		}
		if text, ok := coerceContent(inner); ok {
			msg := ParsedMessage{
				Text:      strings.TrimSpace(text),
				Timestamp: extractTimestamp(obj),
			}
			if role, ok := obj["role"].(string); ok {
				msg.Role = normalizeRole(role)
			}
			return msg, true
		}
	}

	return messageFromObject(obj)
}

// messageFromObject reads role/content directly off an object carrying them.
func messageFromObject(obj map[string]any) (ParsedMessage, bool) {
	text, ok := coerceContent(obj["content"])
	if !ok {
		text, ok = coerceContent(obj["text"])
	}
	if !ok {
		text, ok = coerceContent(obj["message"])
	}
	if !ok {
		return ParsedMessage{}, false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedMessage{}, false
	}

	msg := ParsedMessage{Text: text, Timestamp: extractTimestamp(obj)}
	if role, ok := obj["role"].(string); ok {
		msg.Role = normalizeRole(role)
	}
	return msg, true
}

// coerceContent flattens the known content shapes into text. It is total:
// shapes it does not recognize yield ("", false) rather than an error, so a
// malformed block degrades to "no text" instead of failing the record.
func coerceContent(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		return trimmed, trimmed != ""

	case []any:
		var parts []string
		for _, item := range val {
			if text, ok := coerceContent(item); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "\n"), true

	case map[string]any:
		if hasType(val, typeInputText) {
			if text, ok := val["text"].(string); ok {
				trimmed := strings.TrimSpace(text)
				return trimmed, trimmed != ""
			}
		}
		if content, present := val["content"]; present {
			return coerceContent(content)
		}
		if text, present := val["text"]; present {
			return coerceContent(text)
		}
	}
	return "", false
}

// contentArray locates the content block list for any of the record shapes.
func contentArray(obj map[string]any) ([]any, bool) {
	if inner, ok := obj["message"].(map[string]any); ok {
		if blocks, ok := inner["content"].([]any); ok {
			return blocks, true
		}
	}
	if hasType(obj, typeResponseItem) {
		if payload, ok := obj["payload"].(map[string]any); ok && hasType(payload, typeMessage) {
			if blocks, ok := payload["content"].([]any); ok {
				return blocks, true
			}
		}
	}
	blocks, ok := obj["content"].([]any)
	return blocks, ok
}

func hasToolCall(obj map[string]any) bool {
	blocks, ok := contentArray(obj)
	if !ok {
		return false
	}
	for _, block := range blocks {
		if item, ok := block.(map[string]any); ok && hasType(item, typeToolCall) {
			return true
		}
	}
	return false
}

// ExtractToolCalls returns the tool invocations carried by a record's
// content blocks, in order of appearance.
func ExtractToolCalls(obj map[string]any) []ToolCall {
	blocks, ok := contentArray(obj)
	if !ok {
		return nil
	}

	var tools []ToolCall
	for _, block := range blocks {
		item, ok := block.(map[string]any)
		if !ok || !hasType(item, typeToolCall) {
			continue
		}
		name, _ := item["name"].(string)
		if name == "" {
			name = "unknown"
		}
		tools = append(tools, ToolCall{Name: name, Arguments: item["arguments"]})
	}
	return tools
}

func extractRole(obj map[string]any) string {
	if inner, ok := obj["message"].(map[string]any); ok {
		if role, ok := inner["role"].(string); ok {
			return normalizeRole(role)
		}
	}
	if payload, ok := obj["payload"].(map[string]any); ok {
		if role, ok := payload["role"].(string); ok {
			return normalizeRole(role)
		}
	}
	if role, ok := obj["role"].(string); ok {
		return normalizeRole(role)
	}
	return ""
}

func extractTimestamp(obj map[string]any) string {
	for _, key := range []string{"created_at", "timestamp", "time", "ts"} {
		if value := stringField(obj, key); value != "" {
			return value
		}
	}
	return ""
}

// stringField reads a field as text, accepting both string and numeric
// (epoch) encodings.
func stringField(obj map[string]any, key string) string {
	switch val := obj[key].(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
