// Package langdetect identifies the language of free text. The detector is
// built once at startup for the configured languages and injected wherever
// prediction needs it.
package langdetect

import (
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
	fallback string
}

// New builds a detector restricted to the given ISO 639-1 codes. The first
// code doubles as the fallback when detection yields nothing.
func New(codes []string) (*Detector, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("langdetect: no languages configured")
	}
	languages := make([]lingua.Language, 0, len(codes))
	for _, code := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToUpper(code))
		if iso == lingua.UnknownIsoCode639_1 {
			return nil, fmt.Errorf("langdetect: unknown language code %q", code)
		}
		languages = append(languages, lingua.GetLanguageFromIsoCode639_1(iso))
	}
	if len(languages) == 1 {
		// lingua needs at least two candidates; detection is trivial anyway
		return &Detector{fallback: strings.ToLower(codes[0])}, nil
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()
	return &Detector{detector: detector, fallback: strings.ToLower(codes[0])}, nil
}

// Detect returns the most likely language code and its confidence in [0,1].
func (d *Detector) Detect(text string) (string, float64) {
	if d.detector == nil {
		return d.fallback, 1
	}
	values := d.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return d.fallback, 0
	}
	best := values[0]
	return strings.ToLower(best.Language().IsoCode639_1().String()), best.Value()
}
