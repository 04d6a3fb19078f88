package utterance

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// AvgTokenKey is the tf-idf row holding the per-document average weight,
// used for tokens absent from the vocabulary.
const AvgTokenKey = "__avg__"

// Token is one surface token of an utterance, spaces included.
type Token struct {
	Index   int       `json:"index"`
	Value   string    `json:"value"`
	IsWord  bool      `json:"is_word"`
	IsSpace bool      `json:"is_space"`
	IsBOS   bool      `json:"is_bos"`
	IsEOS   bool      `json:"is_eos"`
	Offset  int       `json:"offset"`
	Vector  []float64 `json:"vector"`
	TFIDF   float64   `json:"tfidf"`
	Cluster int       `json:"cluster"`
}

// Canonical is the lowercased surface form used as vocabulary key.
func (t *Token) Canonical() string {
	return strings.ToLower(t.Value)
}

// EntityTag is an entity occurrence anchored to a character and token range.
type EntityTag struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Occurrence string  `json:"occurrence,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	StartToken int     `json:"start_token"`
	EndToken   int     `json:"end_token"`
}

// SlotTag is a labeled slot span anchored like an EntityTag.
type SlotTag struct {
	Name       string  `json:"name"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	StartToken int     `json:"start_token"`
	EndToken   int     `json:"end_token"`
}

// Utterance owns a token sequence plus append-only entity and slot tags.
type Utterance struct {
	Text     string
	Language string
	tokens   []*Token
	entities []EntityTag
	slots    []SlotTag
}

// New builds an utterance from parallel token and vector slices. Vectors may
// be nil when embeddings are not needed yet.
func New(rawTokens []string, vectors [][]float64, language string) (*Utterance, error) {
	if vectors != nil && len(vectors) != len(rawTokens) {
		return nil, fmt.Errorf("utterance: %d tokens but %d vectors", len(rawTokens), len(vectors))
	}

	u := &Utterance{Language: language}
	offset := 0
	var sb strings.Builder
	for i, raw := range rawTokens {
		tok := &Token{
			Index:   i,
			Value:   raw,
			IsSpace: strings.TrimSpace(raw) == "",
			IsBOS:   i == 0,
			IsEOS:   i == len(rawTokens)-1,
			Offset:  offset,
			TFIDF:   1,
			Cluster: -1,
		}
		tok.IsWord = !tok.IsSpace
		if vectors != nil {
			tok.Vector = vectors[i]
		}
		u.tokens = append(u.tokens, tok)
		sb.WriteString(raw)
		offset += len([]rune(raw))
	}
	u.Text = sb.String()
	return u, nil
}

func (u *Utterance) Tokens() []*Token      { return u.tokens }
func (u *Utterance) Entities() []EntityTag { return u.entities }
func (u *Utterance) Slots() []SlotTag      { return u.slots }

// WordCount counts non-space tokens.
func (u *Utterance) WordCount() int {
	n := 0
	for _, t := range u.tokens {
		if t.IsWord {
			n++
		}
	}
	return n
}

// TagEntity anchors an entity on the [start,end) character range and resolves
// the covered token range.
func (u *Utterance) TagEntity(tag EntityTag) error {
	startTok, endTok, err := u.tokenRange(tag.Start, tag.End)
	if err != nil {
		return fmt.Errorf("utterance: tag entity %q: %w", tag.Name, err)
	}
	tag.StartToken, tag.EndToken = startTok, endTok
	u.entities = append(u.entities, tag)
	return nil
}

// TagSlot anchors a slot on the [start,end) character range.
func (u *Utterance) TagSlot(tag SlotTag) error {
	startTok, endTok, err := u.tokenRange(tag.Start, tag.End)
	if err != nil {
		return fmt.Errorf("utterance: tag slot %q: %w", tag.Name, err)
	}
	tag.StartToken, tag.EndToken = startTok, endTok
	u.slots = append(u.slots, tag)
	return nil
}

// tokenRange maps a character range onto the [startToken,endToken) covering it.
func (u *Utterance) tokenRange(start, end int) (int, int, error) {
	textLen := len([]rune(u.Text))
	if start < 0 || end < start || end > textLen {
		return 0, 0, fmt.Errorf("invalid range [%d,%d) over text of length %d", start, end, textLen)
	}
	startTok, endTok := -1, -1
	for _, t := range u.tokens {
		tokEnd := t.Offset + len([]rune(t.Value))
		if startTok == -1 && tokEnd > start {
			startTok = t.Index
		}
		if t.Offset < end {
			endTok = t.Index + 1
		}
	}
	if startTok == -1 || endTok == -1 {
		return 0, 0, fmt.Errorf("range [%d,%d) covers no token", start, end)
	}
	return startTok, endTok, nil
}

// TokenEntities returns the entity tags covering the token at index i.
func (u *Utterance) TokenEntities(i int) []EntityTag {
	var out []EntityTag
	for _, e := range u.entities {
		if i >= e.StartToken && i < e.EndToken {
			out = append(out, e)
		}
	}
	return out
}

// TokenSlots returns the slot tags covering the token at index i.
func (u *Utterance) TokenSlots(i int) []SlotTag {
	var out []SlotTag
	for _, s := range u.slots {
		if i >= s.StartToken && i < s.EndToken {
			out = append(out, s)
		}
	}
	return out
}

// SetGlobalTFIDF assigns each token its vocabulary weight, falling back to
// the document average for unseen tokens.
func (u *Utterance) SetGlobalTFIDF(weights map[string]float64) {
	avg, hasAvg := weights[AvgTokenKey]
	for _, t := range u.tokens {
		if w, ok := weights[t.Canonical()]; ok {
			t.TFIDF = w
		} else if hasAvg {
			t.TFIDF = avg
		}
	}
}

// Clusterer assigns a vector to its nearest cluster.
type Clusterer interface {
	Nearest(p []float64) int
}

// SetKMeans assigns each word token a cluster id from its vector.
func (u *Utterance) SetKMeans(c Clusterer) {
	if c == nil {
		return
	}
	for _, t := range u.tokens {
		if t.IsWord && len(t.Vector) > 0 {
			t.Cluster = c.Nearest(t.Vector)
		}
	}
}

// SentenceEmbedding averages the L2-normalized token vectors, each weighted
// by min(1, tfidf).
func (u *Utterance) SentenceEmbedding() ([]float64, error) {
	var dims int
	for _, t := range u.tokens {
		if len(t.Vector) > 0 {
			dims = len(t.Vector)
			break
		}
	}
	if dims == 0 {
		return nil, fmt.Errorf("utterance: no token carries a vector")
	}

	sum := make([]float64, dims)
	var totalWeight float64
	for _, t := range u.tokens {
		if t.IsSpace || len(t.Vector) == 0 {
			continue
		}
		norm := floats.Norm(t.Vector, 2)
		if norm == 0 {
			continue
		}
		w := math.Min(1, t.TFIDF)
		for j, v := range t.Vector {
			sum[j] += v / norm * w
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil, fmt.Errorf("utterance: no embeddable tokens")
	}
	floats.Scale(1/totalWeight, sum)
	return sum, nil
}

// Clone deep-copies the utterance, optionally carrying its tags along.
func (u *Utterance) Clone(copyEntities, copySlots bool) *Utterance {
	out := &Utterance{Text: u.Text, Language: u.Language}
	out.tokens = make([]*Token, len(u.tokens))
	for i, t := range u.tokens {
		cp := *t
		cp.Vector = append([]float64(nil), t.Vector...)
		out.tokens[i] = &cp
	}
	if copyEntities {
		out.entities = append([]EntityTag(nil), u.entities...)
	}
	if copySlots {
		out.slots = append([]SlotTag(nil), u.slots...)
	}
	return out
}

// TagMode controls how String renders tagged spans.
type TagMode string

const (
	TagModeKeep  TagMode = "keep"
	TagModeName  TagMode = "name"
	TagModeValue TagMode = "value"
)

// StringOptions controls the String rendering.
type StringOptions struct {
	LowerCase bool
	OnlyWords bool
	Slots     TagMode
	Entities  TagMode
}

// String renders the utterance token by token, replacing tagged spans
// according to the options. Used to key the exact-match index.
func (u *Utterance) String(opts StringOptions) string {
	if opts.Slots == "" {
		opts.Slots = TagModeKeep
	}
	if opts.Entities == "" {
		opts.Entities = TagModeKeep
	}

	var sb strings.Builder
	emitted := map[string]bool{}
	for _, t := range u.tokens {
		if opts.OnlyWords && t.IsSpace {
			continue
		}
		piece := t.Value
		if slots := u.TokenSlots(t.Index); len(slots) > 0 && opts.Slots == TagModeName {
			key := fmt.Sprintf("slot:%s:%d", slots[0].Name, slots[0].StartToken)
			if emitted[key] {
				continue
			}
			emitted[key] = true
			piece = slots[0].Name
		} else if ents := u.TokenEntities(t.Index); len(ents) > 0 && opts.Entities != TagModeKeep {
			key := fmt.Sprintf("entity:%s:%d", ents[0].Name, ents[0].StartToken)
			if emitted[key] {
				continue
			}
			emitted[key] = true
			if opts.Entities == TagModeName {
				piece = ents[0].Name
			} else {
				piece = ents[0].Value
			}
		}
		if opts.LowerCase {
			piece = strings.ToLower(piece)
		}
		sb.WriteString(piece)
		if opts.OnlyWords {
			sb.WriteString(" ")
		}
	}
	return strings.TrimSpace(sb.String())
}

type utteranceJSON struct {
	Text     string      `json:"text"`
	Language string      `json:"language"`
	Tokens   []*Token    `json:"tokens"`
	Entities []EntityTag `json:"entities"`
	Slots    []SlotTag   `json:"slots"`
}

func (u *Utterance) MarshalJSON() ([]byte, error) {
	return json.Marshal(utteranceJSON{
		Text:     u.Text,
		Language: u.Language,
		Tokens:   u.tokens,
		Entities: u.entities,
		Slots:    u.slots,
	})
}

func (u *Utterance) UnmarshalJSON(data []byte) error {
	var raw utteranceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Text = raw.Text
	u.Language = raw.Language
	u.tokens = raw.Tokens
	u.entities = raw.Entities
	u.slots = raw.Slots
	return nil
}
