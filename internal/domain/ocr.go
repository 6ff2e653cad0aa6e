package domain

// OCRLine is one line of text detected on an image.
type OCRLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCRImageResult is the outcome for a single image. Exactly one of Lines or Error is meaningful.
type OCRImageResult struct {
	ImageURL   string    `json:"image_url"`
	Status     string    `json:"status"`
	Lines      []OCRLine `json:"detected_lines,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OCR image statuses.
const (
	OCRStatusSuccess = "success"
	OCRStatusError   = "error"
)

// Failed reports whether OCR failed for this image.
func (r OCRImageResult) Failed() bool {
	return r.Status == OCRStatusError
}

// OCRResult is the raw OCR payload kept on the receipt for audit.
type OCRResult struct {
	TotalImages int              `json:"total_images"`
	Results     []OCRImageResult `json:"results"`
}

// Succeeded returns the number of images that produced text.
func (r *OCRResult) Succeeded() int {
	n := 0
	for _, img := range r.Results {
		if !img.Failed() {
			n++
		}
	}
	return n
}

// Text joins the detected lines of every successful image, one line per row.
func (r *OCRResult) Text() []string {
	var lines []string
	for _, img := range r.Results {
		if img.Failed() {
			continue
		}
		for _, l := range img.Lines {
			lines = append(lines, l.Text)
		}
	}
	return lines
}
