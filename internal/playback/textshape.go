package playback

import "strings"

// Age bounds for text shaping. Outside the shaped bands the text passes
// through verbatim.
const (
	childAgeCeiling = 8
	elderAgeFloor   = 70
)

// ShapeText adjusts prompt text to read naturally for the target age
// before synthesis: short exclamatory phrasing for young children, a
// reflective closing for elderly voices, untouched otherwise. It is a
// pure function; synthesis providers receive the shaped text verbatim.
func ShapeText(text string, targetAge float64) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}

	switch {
	case targetAge <= childAgeCeiling:
		return "Hi! " + strings.ReplaceAll(text, ".", "!")
	case targetAge >= elderAgeFloor:
		return text + " ... I have lived a long life."
	default:
		return text
	}
}
