package models

type QueryPostRequest struct {
	// Text of the query.
	Text string `json:"text"`

	// History of the conversation so far, oldest first.
	History []Message `json:"history,omitempty"`

	// Modalities to search. If empty, the router decides.
	Modalities []string `json:"modalities,omitempty"`

	// Stream the answer as plain text instead of returning JSON. The
	// sources follow the answer.
	Stream bool `json:"stream,omitempty"`
}

type MessageRole string

const (
	MessageRoleHuman MessageRole = "human"
	MessageRoleAI    MessageRole = "ai"
)

type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

type QueryPostResponse struct {
	Answer     string        `json:"answer"`
	Citations  []Citation    `json:"citations"`
	Modalities []string      `json:"modalities"`
	NoContext  bool          `json:"no-context"`
	Context    []ContextItem `json:"context"`
}

type Citation struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Location string `json:"location"`
	Modality string `json:"modality"`
}
