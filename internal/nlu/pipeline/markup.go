package pipeline

import (
	"regexp"
	"unicode/utf8"
)

// Slot annotations use the [source](slotName) form inside example utterances.
var slotMarkup = regexp.MustCompile(`\[([^\[\]]+)\]\(([\w.-]+)\)`)

type slotSpan struct {
	Name  string
	Start int
	End   int
}

// parseSlotMarkup strips the annotations and returns the clean text plus the
// rune ranges the annotations covered.
func parseSlotMarkup(raw string) (string, []slotSpan) {
	matches := slotMarkup.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}

	var clean []byte
	var spans []slotSpan
	last, runeLen := 0, 0
	for _, m := range matches {
		pre := raw[last:m[0]]
		clean = append(clean, pre...)
		runeLen += utf8.RuneCountInString(pre)

		source := raw[m[2]:m[3]]
		name := raw[m[4]:m[5]]
		start := runeLen
		clean = append(clean, source...)
		runeLen += utf8.RuneCountInString(source)
		spans = append(spans, slotSpan{Name: name, Start: start, End: runeLen})
		last = m[1]
	}
	clean = append(clean, raw[last:]...)
	return string(clean), spans
}
