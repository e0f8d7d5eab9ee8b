package domain

// ScanType identifies which simulated scanner produced a record.
type ScanType string

const (
	ScanTypeFile    ScanType = "file"
	ScanTypeURL     ScanType = "url"
	ScanTypeBrowser ScanType = "browser"
	ScanTypeFull    ScanType = "full"
)

// Valid reports whether t is a known scan type.
func (t ScanType) Valid() bool {
	switch t {
	case ScanTypeFile, ScanTypeURL, ScanTypeBrowser, ScanTypeFull:
		return true
	}
	return false
}

// ScanRecord is one entry of the scan history log.
// Corresponds to scan_history table.
type ScanRecord struct {
	ID           string   `json:"id"`
	ScanType     ScanType `json:"scanType"`
	Target       string   `json:"target,omitempty"`
	ThreatsFound int      `json:"threatsFound"`
	Threats      []string `json:"threats"`
	DurationMs   int64    `json:"durationMs"`
	Status       string   `json:"status"`
	CreatedAt    int64    `json:"createdAt"` // ms
}
