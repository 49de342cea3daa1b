package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fencedObjectPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	fencedArrayPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSONObject returns the outermost JSON object in a model response, or "".
func extractJSONObject(raw string) string {
	if m := fencedObjectPattern.FindStringSubmatch(raw); len(m) > 1 {
		return cleanJSON(m[1])
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return cleanJSON(raw[start : end+1])
	}
	return ""
}

// extractJSONArray returns the outermost JSON array in a model response, or "".
func extractJSONArray(raw string) string {
	if m := fencedArrayPattern.FindStringSubmatch(raw); len(m) > 1 {
		return cleanJSON(m[1])
	}
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return cleanJSON(raw[start : end+1])
	}
	return ""
}

// arrayFirst reports whether the response opens an array before any object.
func arrayFirst(raw string) bool {
	arr := strings.Index(raw, "[")
	obj := strings.Index(raw, "{")
	return arr >= 0 && (obj < 0 || arr < obj)
}

func cleanJSON(raw string) string {
	return trailingCommaPattern.ReplaceAllString(strings.TrimSpace(raw), "$1")
}

// truncateRunes cuts text to at most limit runes without splitting a character.
func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

func decodeObject(raw string) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("unmarshal json object: %w", err)
	}
	return value, nil
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data), nil
}
