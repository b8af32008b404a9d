package models

// These structs define the JSON payloads exchanged by the cloud functions.

// ParseResult is the stored output of the document-parser function.
type ParseResult struct {
	DocumentID     string        `json:"documentId"`
	Filename       string        `json:"filename"`
	Pages          []PageContent `json:"pages"`
	ProcessingTime float64       `json:"processing_time"`
}

// NarrationRequest is the input for the narration-builder function.
type NarrationRequest struct {
	DocumentID   string        `json:"documentId,omitempty"`
	ExecutionID  string        `json:"executionId,omitempty"`
	ResultGCSUri string        `json:"resultGcsUri,omitempty"`
	Pages        []PageContent `json:"pages"`
}

// NarrationResponse is the output of the narration-builder function.
type NarrationResponse struct {
	Status    string   `json:"status"`
	Fragments []string `json:"fragments"`
	Text      string   `json:"text"`
	GCSUri    string   `json:"gcsUri,omitempty"`
}
