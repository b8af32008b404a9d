package models

import "time"

// Run statuses recorded on a Document while it moves through the parser.
const (
	StatusParsing = "PARSING"
	StatusParsed  = "PARSED"
	StatusFailed  = "FAILED"
)

// Document represents the Firestore record for one document-parsing run.
// It tracks the overall status and metadata of the upload.
type Document struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	Format              string    `firestore:"format,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorKind           string    `firestore:"errorKind,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	ResultGCSUri        string    `firestore:"resultGcsUri,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
