package models

type RoutePostRequest struct {
	Text    string    `json:"text"`
	History []Message `json:"history,omitempty"`
}

type RoutePostResponse struct {
	Modalities []string `json:"modalities"`
}
