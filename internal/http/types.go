package http

// TokenResponse is the response body for POST and GET /tenants.
type TokenResponse struct {
	Token string `json:"token"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResponse is the response body for POST /documents.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Pages    int    `json:"pages"`
}

// ListResponse is the response body for GET /documents.
type ListResponse struct {
	Filenames []string `json:"filenames"`
}

// DeleteResponse is the response body for DELETE /documents.
type DeleteResponse struct {
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

// QueryResponse is the response body for POST /query.
type QueryResponse struct {
	Answer string `json:"answer"`
	Hits   []Hit  `json:"hits"`
}

// Hit is one retrieved passage.
type Hit struct {
	ID       string  `json:"id"`
	Distance float32 `json:"distance"`
	Text     string  `json:"text"`
	Filename string  `json:"filename"`
	Page     int     `json:"page"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
