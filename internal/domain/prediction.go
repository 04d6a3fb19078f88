package domain

// Entity is one extracted entity occurrence, whatever its extractor.
type Entity struct {
	Name string     `json:"name"`
	Type string     `json:"type"`
	Meta EntityMeta `json:"meta"`
	Data EntityData `json:"data"`
}

type EntityMeta struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type EntityData struct {
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

type IntentPrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

type SlotPrediction struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Entity     *Entity `json:"entity,omitempty"`
}

// PredictOutput is the result of running the full prediction pipeline on one
// sentence. Intents are sorted by confidence, best first.
type PredictOutput struct {
	Text      string                    `json:"text"`
	Language  string                    `json:"language"`
	Intents   []IntentPrediction        `json:"intents"`
	Entities  []Entity                  `json:"entities"`
	Slots     map[string]SlotPrediction `json:"slots"`
	Ambiguous bool                      `json:"ambiguous"`
}

// TopIntent returns the best intent or a zero prediction when none exist.
func (p *PredictOutput) TopIntent() IntentPrediction {
	if len(p.Intents) == 0 {
		return IntentPrediction{Label: "none", Confidence: 1}
	}
	return p.Intents[0]
}
