package content

import (
	"slices"
	"strings"
)

// Decision is the set of modalities selected for a query. A zero Decision is
// treated as text only.
type Decision struct {
	modalities []Modality
}

func NewDecision(modalities ...Modality) Decision {
	var d Decision
	for _, m := range modalities {
		if m.Order() > ModalityTable.Order() || slices.Contains(d.modalities, m) {
			continue
		}
		d.modalities = append(d.modalities, m)
	}
	slices.SortFunc(d.modalities, func(a, b Modality) int { return a.Order() - b.Order() })
	return d
}

// AllModalities is the fail-open decision.
func AllModalities() Decision {
	return NewDecision(Modalities...)
}

// Modalities returns the selected modalities in rank order, never empty.
func (d Decision) Modalities() []Modality {
	if len(d.modalities) == 0 {
		return []Modality{ModalityText}
	}
	return slices.Clone(d.modalities)
}

func (d Decision) Has(m Modality) bool {
	return slices.Contains(d.Modalities(), m)
}

func (d Decision) String() string {
	ms := d.Modalities()
	s := make([]string, len(ms))
	for i, m := range ms {
		s[i] = string(m)
	}
	return strings.Join(s, ",")
}
