package models

type ContextPostRequest struct {
	Text       string    `json:"text"`
	History    []Message `json:"history,omitempty"`
	Modalities []string  `json:"modalities,omitempty"`
}

type ContextPostResponse struct {
	Modalities []string      `json:"modalities"`
	Results    []ContextItem `json:"results"`
}

type ContextItem struct {
	ID       string `json:"id"`
	Modality string `json:"modality"`
	// Text is the searchable text of the item: a text chunk, an image
	// caption or a table description.
	Text string `json:"text"`
	// Raw is the chunk text, image path or table CSV path.
	Raw       string  `json:"raw"`
	Kind      string  `json:"kind,omitempty"`
	Score     float64 `json:"score"`
	RankScore float64 `json:"rank-score"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Location  string  `json:"location"`
}
