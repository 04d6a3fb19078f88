package entities

import (
	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// ListEntityModel precomputes the tokenization of every occurrence and
// synonym of a list entity so extraction never calls the tokenizer.
type ListEntityModel struct {
	ID             string                `json:"id"`
	EntityName     string                `json:"entity_name"`
	LanguageCode   string                `json:"language_code"`
	FuzzyMatching  bool                  `json:"fuzzy_matching"`
	MappingsTokens map[string][][]string `json:"mappings_tokens"` // canonical value -> token sequences
}

// MakeListEntityModel assembles the model for one list entity definition.
// tokensOf must return the token sequence of a raw synonym string; callers
// batch-tokenize all values up front and close over the result.
func MakeListEntityModel(def domain.EntityDefinition, language string, tokensOf func(string) []string) ListEntityModel {
	mappings := make(map[string][][]string, len(def.Occurrences))
	for _, occ := range def.Occurrences {
		values := append([]string{}, occ.Synonyms...)
		values = append(values, occ.Name)
		seqs := make([][]string, 0, len(values))
		for _, v := range values {
			if toks := tokensOf(v); len(toks) > 0 {
				seqs = append(seqs, toks)
			}
		}
		mappings[occ.Name] = seqs
	}
	return ListEntityModel{
		ID:             "custom.list." + def.Name,
		EntityName:     def.Name,
		LanguageCode:   language,
		FuzzyMatching:  def.FuzzyLevel > 0 && def.FuzzyLevel < 1,
		MappingsTokens: mappings,
	}
}
