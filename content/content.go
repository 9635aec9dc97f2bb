// Package content defines the items stored in the per-modality indexes and
// the hits returned when searching them.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityTable Modality = "table"
)

// Modalities lists every modality in rank order.
var Modalities = []Modality{ModalityText, ModalityImage, ModalityTable}

func ParseModality(s string) (m Modality, err error) {
	switch Modality(strings.ToLower(strings.TrimSpace(s))) {
	case ModalityText:
		return ModalityText, nil
	case ModalityImage:
		return ModalityImage, nil
	case ModalityTable:
		return ModalityTable, nil
	}
	return m, fmt.Errorf("content: unknown modality %q", s)
}

// Order of the modality, used to break ties deterministically.
func (m Modality) Order() int {
	switch m {
	case ModalityText:
		return 0
	case ModalityImage:
		return 1
	case ModalityTable:
		return 2
	}
	return 3
}

// Origin describes where the surrogate text of an item came from.
func (m Modality) Origin() string {
	switch m {
	case ModalityImage:
		return "from an image caption"
	case ModalityTable:
		return "from a table description"
	}
	return "from a paragraph"
}

// Item is a single piece of indexed content. Items are created at ingestion
// time and never modified afterwards.
type Item struct {
	// ID is the content fingerprint of the surrogate text.
	ID            string
	Partition     string
	DocumentURL   string
	DocumentTitle string
	// Location within the document, e.g. "page 3".
	Location string
	Modality Modality
	// Seq is the ingestion order within the partition.
	Seq int64
	// Surrogate is the text used for embedding and ranking: the chunk itself,
	// an image caption, or a table description.
	Surrogate string
	// Raw is the chunk text, the image path, or the CSV path.
	Raw string
	// Kind is the coarse image type, empty for other modalities.
	Kind      string
	Embedding []float32
}

// Fingerprint returns the identity of an item with the given surrogate text.
// Whitespace differences don't change the fingerprint.
func Fingerprint(surrogate string) string {
	h := sha256.Sum256([]byte(strings.Join(strings.Fields(surrogate), " ")))
	return hex.EncodeToString(h[:])
}

type Hit struct {
	Item     Item
	Score    float64
	Modality Modality
}

// Message is one turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)
