package reason

import "strings"

// ExtractJSONObject pulls the first top-level JSON object out of model
// output, stripping markdown code fences if present. Returns "" when no
// object is found.
func ExtractJSONObject(text string) string {
	return extractDelimited(stripFences(text), '{', '}')
}

// ExtractJSONArray pulls the first top-level JSON array out of model
// output, stripping markdown code fences if present. Returns "" when no
// array is found.
func ExtractJSONArray(text string) string {
	return extractDelimited(stripFences(text), '[', ']')
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

func extractDelimited(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
