package oracle

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/model"
)

// parseExtraction recovers a RawExtraction from a model reply. Vision
// models are asked for bare JSON but answer with fenced JSON, JSON buried
// in prose, or markdown bullet lists often enough that each shape gets a
// fallback. A reply no field can be recovered from is an extraction
// error; the consensus builder counts it as a failed sample.
func parseExtraction(text string, sample int, profile fields.Profile) (model.RawExtraction, error) {
	raw := model.RawExtraction{SampleIndex: sample}

	if obj := decodeObject(stripFences(text)); obj != nil && foldInto(&raw, obj, profile) > 0 {
		return raw, nil
	}

	// Anything past this point was dug out of an annotated reply.
	raw.RawText = true

	for _, span := range objectSpans(text) {
		if obj := decodeObject(span); obj != nil && foldInto(&raw, obj, profile) > 0 {
			return raw, nil
		}
	}

	if parseKeyValueLines(&raw, text, profile) > 0 {
		return raw, nil
	}

	return model.RawExtraction{}, eris.Errorf("oracle: no extractable fields in model reply (%d bytes)", len(text))
}

// stripFences removes a markdown code fence wrapper, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
	default:
		return text
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// decodeObject parses s as a JSON object, returning nil when it is not one.
func decodeObject(s string) map[string]any {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// foldInto writes recognized keys from obj into raw and reports how many
// keys matched the profile. A recognized key with an empty value counts
// as a match: the model saw the field and read nothing.
func foldInto(raw *model.RawExtraction, obj map[string]any, profile fields.Profile) int {
	matched := 0
	for key, val := range obj {
		fk, ok := profile.Canonical(key)
		if !ok {
			continue
		}
		matched++
		if s := scalarString(val); s != "" && raw.Value(fk) == "" {
			raw.Set(fk, s)
		}
	}
	return matched
}

// scalarString renders a scalar JSON value the way models write it.
// Objects and arrays are skipped.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// objectSpans returns every balanced top-level {...} span in text,
// ignoring braces inside JSON strings.
func objectSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// parseKeyValueLines scrapes "Check Number: 1023" style lines, the shape
// models fall back to when they ignore the JSON instruction. Returns how
// many fields it managed to set.
func parseKeyValueLines(raw *model.RawExtraction, text string, profile fields.Profile) int {
	set := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "*-• \t")
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fk, found := profile.Canonical(strings.TrimSpace(strings.Trim(key, "* ")))
		if !found {
			continue
		}

		val = strings.TrimSpace(strings.TrimLeft(val, "* "))
		val = strings.TrimSuffix(val, ",")
		val = strings.TrimSpace(strings.Trim(val, `"'`))
		if val == "" || raw.Value(fk) != "" {
			continue
		}
		raw.Set(fk, val)
		set++
	}
	return set
}
