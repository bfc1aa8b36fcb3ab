package language

import "strings"

// Undetermined is the code used when a language could not be resolved.
const Undetermined = "und"

// NormalizeTag normalizes a language tag to lowercase and "-" separators.
// Returns an empty string when the value is blank or contains invalid characters.
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "-")
}

// NormalizeCode returns the primary language subtag (for example, "en" from "en-US").
// "auto" and "und" mean the caller does not know the language and map to "".
func NormalizeCode(raw string) string {
	tag := NormalizeTag(raw)
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		tag = tag[:dash]
	}
	switch tag {
	case "auto", Undetermined:
		return ""
	}
	return tag
}

// Same reports whether two tags share a primary subtag. Unknown languages are
// never the same as anything.
func Same(a, b string) bool {
	codeA := NormalizeCode(a)
	return codeA != "" && codeA == NormalizeCode(b)
}

// PairKey identifies a source/target pair; an unknown source is "und".
func PairKey(source, target string) string {
	src := NormalizeCode(source)
	if src == "" {
		src = Undetermined
	}
	dst := NormalizeCode(target)
	if dst == "" {
		dst = Undetermined
	}
	return src + "->" + dst
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
