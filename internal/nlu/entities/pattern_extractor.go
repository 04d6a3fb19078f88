package entities

import (
	"fmt"
	"regexp"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// ExtractPatternEntities matches every pattern entity's regex against the
// utterance text. All non-overlapping matches are tagged with confidence 1.
func ExtractPatternEntities(u *utterance.Utterance, defs []domain.EntityDefinition) ([]utterance.EntityTag, error) {
	var matches []utterance.EntityTag
	for _, def := range defs {
		if def.Type != domain.EntityTypePattern || def.Pattern == "" {
			continue
		}
		pattern := def.Pattern
		if !def.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("entities: pattern entity %q: %w", def.Name, err)
		}
		for _, loc := range re.FindAllStringIndex(u.Text, -1) {
			value := u.Text[loc[0]:loc[1]]
			matches = append(matches, utterance.EntityTag{
				Name:       def.Name,
				Type:       "pattern",
				Value:      value,
				Source:     value,
				Confidence: 1,
				Start:      runeIndex(u.Text, loc[0]),
				End:        runeIndex(u.Text, loc[1]),
			})
		}
	}
	return matches, nil
}

// runeIndex converts a byte offset into a rune offset.
func runeIndex(s string, byteOff int) int {
	return len([]rune(s[:byteOff]))
}
