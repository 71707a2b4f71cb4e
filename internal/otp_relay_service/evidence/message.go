package evidence

import "strings"

// MessageFields is the priority list of keys that may carry the SMS body.
var MessageFields = []string{"message", "sms", "msg", "text", "body", "sms_text", "content", "raw"}

// MessageSource tells where ExtractMessage found its text.
type MessageSource int

const (
	SourceNone MessageSource = iota
	SourceTopLevel
	SourceNested
	SourceWholeRecord
)

func (s MessageSource) String() string {
	switch s {
	case SourceTopLevel:
		return "top_level"
	case SourceNested:
		return "nested"
	case SourceWholeRecord:
		return "whole_record"
	}
	return "none"
}

// Message is a best-effort extraction result.
type Message struct {
	Text   string
	Source MessageSource
}

// Found reports whether the text came from a message field rather than the whole record.
func (m Message) Found() bool {
	return m.Source == SourceTopLevel || m.Source == SourceNested
}

// ExtractMessage locates the human-readable SMS body of a provider record:
// a top-level message field first, then a case-insensitive depth-first search of
// nested values, then the flattened record itself.
func ExtractMessage(record map[string]any) Message {
	for _, key := range MessageFields {
		v, ok := record[key]
		if !ok || isEmptyValue(v) {
			continue
		}
		if text := Flatten(v); text != "" {
			return Message{Text: text, Source: SourceTopLevel}
		}
	}

	if text, ok := findMessageField(record); ok {
		return Message{Text: text, Source: SourceNested}
	}

	if flat := Flatten(record); strings.TrimSpace(flat) != "" {
		return Message{Text: flat, Source: SourceWholeRecord}
	}
	return Message{}
}

func findMessageField(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			val := t[k]
			if isMessageField(k) && isScalar(val) {
				if text := Flatten(val); text != "" {
					return text, true
				}
			}
			if text, ok := findMessageField(val); ok {
				return text, true
			}
		}
	case []any:
		for _, e := range t {
			if text, ok := findMessageField(e); ok {
				return text, true
			}
		}
	}
	return "", false
}

func isMessageField(key string) bool {
	key = strings.ToLower(key)
	for _, f := range MessageFields {
		if key == f {
			return true
		}
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, map[string]any, []any:
		return false
	}
	return true
}
