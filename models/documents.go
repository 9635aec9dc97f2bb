package models

type DocumentsPostRequest struct {
	Document Document `json:"document"`
}

type Document struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	// Text is treated as a single page of unknown number. Use Pages when
	// page numbers are known.
	Text   string  `json:"text,omitempty"`
	Pages  []Page  `json:"pages,omitempty"`
	Images []Image `json:"images,omitempty"`
	Tables []Table `json:"tables,omitempty"`
}

type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type Image struct {
	Name     string `json:"name"`
	Page     int    `json:"page,omitempty"`
	MIMEType string `json:"mime-type"`
	// Data is base64 encoded in JSON.
	Data []byte `json:"data"`
}

type Table struct {
	Page int        `json:"page,omitempty"`
	Rows [][]string `json:"rows"`
}

type DocumentsPostResponse struct {
	Text   int `json:"text"`
	Images int `json:"images"`
	Tables int `json:"tables"`
}

type DocumentsDeleteResponse struct {
	URL string `json:"url"`
}
