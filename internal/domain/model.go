package domain

import "time"

// ModelType identifies the kind of serialized artifact a training run emits.
type ModelType string

const (
	ModelTypeIntentL0     ModelType = "intent-l0"
	ModelTypeIntentL1     ModelType = "intent-l1"
	ModelTypeSlotCRF      ModelType = "slot-crf"
	ModelTypeListEntities ModelType = "list-entities"
	ModelTypeTFIDF        ModelType = "tfidf"
	ModelTypeMeta         ModelType = "meta"
)

type ArtifactMeta struct {
	Context   string    `json:"context,omitempty"`
	Type      ModelType `json:"type"`
	Hash      string    `json:"hash"`
	Scope     string    `json:"scope"`
	CreatedOn time.Time `json:"created_on"`
}

// ModelArtifact is an opaque trained model plus enough metadata to know
// whether it is stale. Persistence of artifacts is owned by the caller.
type ModelArtifact struct {
	Meta  ArtifactMeta `json:"meta"`
	Model []byte       `json:"model"`
}

// TrainOutput carries everything produced by one training run.
type TrainOutput struct {
	Hash      string          `json:"hash"`
	Language  string          `json:"language"`
	Artifacts []ModelArtifact `json:"artifacts"`
	Errored   bool            `json:"errored"`
}
