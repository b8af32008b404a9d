package models

// Region labels emitted by the layout detector (DocLayNet vocabulary).
const (
	LabelCaption       = "Caption"
	LabelFootnote      = "Footnote"
	LabelFormula       = "Formula"
	LabelListItem      = "List-item"
	LabelPageFooter    = "Page-footer"
	LabelPageHeader    = "Page-header"
	LabelPicture       = "Picture"
	LabelSectionHeader = "Section-header"
	LabelTable         = "Table"
	LabelText          = "Text"
	LabelTitle         = "Title"
)

// Labels is the closed vocabulary a detector may return.
var Labels = []string{
	LabelCaption,
	LabelFootnote,
	LabelFormula,
	LabelListItem,
	LabelPageFooter,
	LabelPageHeader,
	LabelPicture,
	LabelSectionHeader,
	LabelTable,
	LabelText,
	LabelTitle,
}

// Page is one rendered raster image of a document page.
type Page struct {
	Index     int    `json:"page"`
	ImagePath string `json:"imagePath"`
	DPI       int    `json:"dpi"`
}

// Detection is a raw box as returned by a detection capability, before it
// has been validated against the page bounds.
type Detection struct {
	Label      string
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// Region is a validated, labeled box in page pixel space.
// X1 <= X2 and Y1 <= Y2 always hold, and the box lies within the page.
type Region struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
}

// ContentItem is the extracted representation of a Region: recognized text,
// or the path of a persisted crop for visual labels.
type ContentItem struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// PageContent is the ordered content of one page in reading order.
type PageContent struct {
	Page    int           `json:"page"`
	Content []ContentItem `json:"content"`
}

// NarrationScript is the flat sequence of spoken fragments for one or more pages.
type NarrationScript struct {
	Fragments []string `json:"fragments"`
}
