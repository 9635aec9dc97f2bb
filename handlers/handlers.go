// Package handlers converts between the HTTP models and the domain types
// used by the handlers beneath it.
package handlers

import (
	"github.com/a-h/ragrouter/content"
	"github.com/a-h/ragrouter/fusion"
	"github.com/a-h/ragrouter/generate"
	"github.com/a-h/ragrouter/models"
)

func History(msgs []models.Message) []content.Message {
	if len(msgs) == 0 {
		return nil
	}
	history := make([]content.Message, len(msgs))
	for i, m := range msgs {
		role := content.RoleHuman
		if m.Role == models.MessageRoleAI {
			role = content.RoleAI
		}
		history[i] = content.Message{Role: role, Content: m.Content}
	}
	return history
}

// Modalities parses the requested modalities. An empty list is valid, and
// leaves the choice to the router.
func Modalities(names []string) (modalities []content.Modality, err error) {
	for _, name := range names {
		m, err := content.ParseModality(name)
		if err != nil {
			return nil, err
		}
		modalities = append(modalities, m)
	}
	return modalities, nil
}

func DecisionNames(d content.Decision) []string {
	modalities := d.Modalities()
	names := make([]string, len(modalities))
	for i, m := range modalities {
		names[i] = string(m)
	}
	return names
}

func ContextItems(ranked []fusion.Ranked) []models.ContextItem {
	items := make([]models.ContextItem, len(ranked))
	for i, r := range ranked {
		items[i] = models.ContextItem{
			ID:        r.Item.ID,
			Modality:  string(r.Modality),
			Text:      r.Item.Surrogate,
			Raw:       r.Item.Raw,
			Kind:      r.Item.Kind,
			Score:     r.Score,
			RankScore: r.RankScore,
			URL:       r.Item.DocumentURL,
			Title:     r.Item.DocumentTitle,
			Location:  r.Item.Location,
		}
	}
	return items
}

func Citations(citations []generate.Citation) []models.Citation {
	mc := make([]models.Citation, len(citations))
	for i, c := range citations {
		mc[i] = models.Citation{
			URL:      c.DocumentURL,
			Title:    c.DocumentTitle,
			Location: c.Location,
			Modality: string(c.Modality),
		}
	}
	return mc
}
