package domain

// EntityType discriminates the training-time entity definitions.
type EntityType string

const (
	EntityTypeList    EntityType = "list"
	EntityTypePattern EntityType = "pattern"
	EntityTypeSystem  EntityType = "system"
)

// TrainInput is the full payload needed to train one bot in one language.
type TrainInput struct {
	BotID    string             `json:"bot_id"`
	Language string             `json:"language"`
	Intents  []IntentDefinition `json:"intents"`
	Entities []EntityDefinition `json:"entities"`
	Seed     int64              `json:"seed"`
}

type IntentDefinition struct {
	Name       string           `json:"name"`
	Contexts   []string         `json:"contexts"`
	Utterances []string         `json:"utterances"`
	Slots      []SlotDefinition `json:"slots"`
}

type SlotDefinition struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

type EntityDefinition struct {
	Name          string             `json:"name"`
	Type          EntityType         `json:"type"`
	FuzzyLevel    float64            `json:"fuzzy_level,omitempty"`
	Occurrences   []EntityOccurrence `json:"occurrences,omitempty"`
	Pattern       string             `json:"pattern,omitempty"`
	CaseSensitive bool               `json:"case_sensitive,omitempty"`
}

// EntityOccurrence is one canonical value of a list entity plus the synonyms
// that should resolve to it.
type EntityOccurrence struct {
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms"`
}
