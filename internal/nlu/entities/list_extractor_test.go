package entities

import (
	"regexp"
	"testing"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

var spaceSplit = regexp.MustCompile(`( )`)

// splitTokens splits on spaces, keeping each space as its own token.
func splitTokens(s string) []string {
	var out []string
	last := 0
	for _, loc := range spaceSplit.FindAllStringIndex(s, -1) {
		if loc[0] > last {
			out = append(out, s[last:loc[0]])
		}
		out = append(out, " ")
		last = loc[1]
	}
	if last < len(s) {
		out = append(out, s[last:])
	}
	return out
}

func makeUtterance(t *testing.T, text string) *utterance.Utterance {
	t.Helper()
	u, err := utterance.New(splitTokens(text), nil, "en")
	if err != nil {
		t.Fatalf("utterance.New: %v", err)
	}
	return u
}

func tokenize(values []string) [][]string {
	out := make([][]string, len(values))
	for i, v := range values {
		out[i] = splitTokens(v)
	}
	return out
}

func fruitModel() ListEntityModel {
	return ListEntityModel{
		ID:            "custom.list.fruit",
		EntityName:    "fruit",
		LanguageCode:  "en",
		FuzzyMatching: true,
		MappingsTokens: map[string][][]string{
			"Blueberry":  tokenize([]string{"blueberries", "blueberry", "blue berries", "blue berry", "poisonous blueberry"}),
			"Strawberry": tokenize([]string{"strawberries", "strawberry", "straw berries", "straw berry"}),
		},
	}
}

func airportModel() ListEntityModel {
	return ListEntityModel{
		ID:            "custom.list.airport",
		EntityName:    "airport",
		LanguageCode:  "en",
		FuzzyMatching: true,
		MappingsTokens: map[string][][]string{
			"JFK": tokenize([]string{"JFK", "New-York", "NYC"}),
			"YQB": tokenize([]string{"YQB", "Quebec", "Quebec city"}),
		},
	}
}

func TestExtractListEntitiesExactMatch(t *testing.T) {
	u := makeUtterance(t, "Blueberries are berries that are blue")
	results := ExtractListEntities(u, []ListEntityModel{fruitModel()})

	if len(results) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(results), results)
	}
	m := results[0]
	if m.Value != "Blueberry" {
		t.Errorf("value = %q, want Blueberry", m.Value)
	}
	if m.Start != 0 || m.End != 11 {
		t.Errorf("span = [%d,%d), want [0,11)", m.Start, m.End)
	}
	if m.Name != "fruit" {
		t.Errorf("entity name = %q, want fruit", m.Name)
	}
	if m.Confidence <= 0.9 {
		t.Errorf("confidence = %f, want > 0.9", m.Confidence)
	}
	if m.Source != "Blueberries" {
		t.Errorf("source = %q, want Blueberries", m.Source)
	}
	if m.Occurrence != "blueberries" {
		t.Errorf("occurrence = %q, want blueberries", m.Occurrence)
	}
}

func TestExtractListEntitiesMultiTokenSynonym(t *testing.T) {
	u := makeUtterance(t, "Blue berries are berries that are blue")
	results := ExtractListEntities(u, []ListEntityModel{fruitModel()})

	var hits []utterance.EntityTag
	for _, r := range results {
		if r.Start < 12 {
			hits = append(hits, r)
		}
	}
	if len(hits) != 1 {
		t.Fatalf("got %d matches over the span, want 1: %+v", len(hits), hits)
	}
	if hits[0].Value != "Blueberry" || hits[0].Confidence <= 0.9 {
		t.Errorf("match = %+v, want Blueberry with confidence > 0.9", hits[0])
	}
}

func TestExtractListEntitiesFullLiteralMultiWord(t *testing.T) {
	u := makeUtterance(t, "that is a poisonous blueberry")
	results := ExtractListEntities(u, []ListEntityModel{fruitModel()})

	var best *utterance.EntityTag
	for i := range results {
		if best == nil || results[i].Confidence > best.Confidence {
			best = &results[i]
		}
	}
	if best == nil {
		t.Fatal("no match for full multi-word literal")
	}
	if best.Value != "Blueberry" || best.Source != "poisonous blueberry" {
		t.Errorf("best = %+v, want Blueberry from 'poisonous blueberry'", best)
	}
	if best.Confidence < 1 {
		t.Errorf("confidence = %f, want 1 for full literal", best.Confidence)
	}
}

func TestExtractListEntitiesFuzzyTypo(t *testing.T) {
	u := makeUtterance(t, "Bluebrries are berries that are blue")
	results := ExtractListEntities(u, []ListEntityModel{fruitModel()})

	var hits []utterance.EntityTag
	for _, r := range results {
		if r.Start == 0 {
			hits = append(hits, r)
		}
	}
	if len(hits) != 1 || hits[0].Value != "Blueberry" {
		t.Fatalf("typo match = %+v, want one Blueberry", hits)
	}
}

func TestExtractListEntitiesCaseSensitiveShortSpan(t *testing.T) {
	// spans under 4 characters use exact scoring, so casing matters
	lower := makeUtterance(t, "yqb is the place")
	if got := ExtractListEntities(lower, []ListEntityModel{airportModel()}); len(got) != 0 {
		t.Errorf("lowercase yqb matched: %+v", got)
	}
	upper := makeUtterance(t, "YQB is the place")
	got := ExtractListEntities(upper, []ListEntityModel{airportModel()})
	if len(got) != 1 || got[0].Value != "YQB" {
		t.Errorf("uppercase YQB gave %+v, want one YQB match", got)
	}
}

func TestExtractListEntitiesNonFuzzyRequiresFullLiteral(t *testing.T) {
	strict := ListEntityModel{
		ID:            "custom.list.fruit",
		EntityName:    "fruit",
		LanguageCode:  "en",
		FuzzyMatching: false,
		MappingsTokens: map[string][][]string{
			"Apple": tokenize([]string{"apple"}),
		},
	}

	if got := ExtractListEntities(makeUtterance(t, "i love apples a lot"), []ListEntityModel{strict}); len(got) != 0 {
		t.Errorf("partial span matched a non-fuzzy entity: %+v", got)
	}
	got := ExtractListEntities(makeUtterance(t, "i love apple pie"), []ListEntityModel{strict})
	if len(got) != 1 || got[0].Value != "Apple" || got[0].Confidence != 1 {
		t.Fatalf("full literal gave %+v, want one Apple match with confidence 1", got)
	}
}

func TestExtractListEntitiesOverlapElimination(t *testing.T) {
	// "blue berries" overlaps both the two-token synonym and single-token
	// fuzzy candidates; exactly one survives per token position.
	u := makeUtterance(t, "blue berries")
	results := ExtractListEntities(u, []ListEntityModel{fruitModel()})
	if len(results) != 1 {
		t.Fatalf("got %d matches, want exactly 1: %+v", len(results), results)
	}
}

func TestExtractListEntitiesSharedOccurrence(t *testing.T) {
	city := ListEntityModel{
		ID:            "custom.list.city",
		EntityName:    "city",
		LanguageCode:  "en",
		FuzzyMatching: true,
		MappingsTokens: map[string][][]string{
			"NewYork": tokenize([]string{"New York"}),
		},
	}
	state := city
	state.ID = "custom.list.state"
	state.EntityName = "state"

	u := makeUtterance(t, "I want to go to New York")
	results := ExtractListEntities(u, []ListEntityModel{city, state})

	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	if !names["city"] || !names["state"] {
		t.Errorf("expected matches from both lists, got %+v", results)
	}
}

func TestMakeListEntityModel(t *testing.T) {
	def := domain.EntityDefinition{
		Name:       "fruit",
		Type:       domain.EntityTypeList,
		FuzzyLevel: 0.8,
		Occurrences: []domain.EntityOccurrence{
			{Name: "Blueberry", Synonyms: []string{"blueberries", "blue berries"}},
		},
	}
	model := MakeListEntityModel(def, "en", func(s string) []string { return splitTokens(s) })

	if !model.FuzzyMatching {
		t.Error("fuzzy level 0.8 should enable fuzzy matching")
	}
	seqs := model.MappingsTokens["Blueberry"]
	if len(seqs) != 3 {
		t.Fatalf("got %d token sequences, want 3 (synonyms plus canonical)", len(seqs))
	}
}

func TestExtractPatternEntities(t *testing.T) {
	u := makeUtterance(t, "call me at 555-1234 or 555-9876")
	defs := []domain.EntityDefinition{
		{Name: "phone", Type: domain.EntityTypePattern, Pattern: `\d{3}-\d{4}`},
	}
	results, err := ExtractPatternEntities(u, defs)
	if err != nil {
		t.Fatalf("ExtractPatternEntities: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d matches, want 2", len(results))
	}
	if results[0].Value != "555-1234" || results[0].Start != 11 || results[0].End != 19 {
		t.Errorf("first match = %+v", results[0])
	}
	for _, r := range results {
		if r.Confidence != 1 {
			t.Errorf("pattern confidence = %f, want 1", r.Confidence)
		}
	}
}

func TestExtractPatternEntitiesBadRegex(t *testing.T) {
	u := makeUtterance(t, "anything")
	defs := []domain.EntityDefinition{
		{Name: "broken", Type: domain.EntityTypePattern, Pattern: `([`},
	}
	if _, err := ExtractPatternEntities(u, defs); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
