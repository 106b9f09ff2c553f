package publisher

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Audit outcomes
const (
	AuditInserted = "Inserted"
	AuditSkipped  = "Skipped"
	AuditFailed   = "Failed"
)

// AuditTrail appends one filename,location,outcome line per publish attempt.
type AuditTrail struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// auditTimeLayout stamps each run's audit file, YYYYMMDD-HHMMSS.
const auditTimeLayout = "20060102-150405"

// AuditFilePath returns {folder}/{type}_{YYYYMMDD-HHMMSS}.csv for a run started at runTime
func AuditFilePath(folder, dataFileType string, runTime time.Time) string {
	return filepath.Join(folder, fmt.Sprintf("%s_%s.csv", dataFileType, runTime.Format(auditTimeLayout)))
}

// OpenAudit opens the audit file of one run. Runs started within the same
// second share the file, so it is opened in append mode.
func OpenAudit(folder, dataFileType string, runTime time.Time) (*AuditTrail, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create audit folder %s: %w", folder, err)
	}

	path := AuditFilePath(folder, dataFileType, runTime)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}

	return &AuditTrail{path: path, file: file, w: csv.NewWriter(file)}, nil
}

// Path returns the audit file location
func (a *AuditTrail) Path() string {
	return a.path
}

// Record writes one line and flushes it
func (a *AuditTrail) Record(filename, location, outcome string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.w.Write([]string{filename, location, outcome}); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return fmt.Errorf("flush audit line: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (a *AuditTrail) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.w.Flush()
	if err := a.w.Error(); err != nil {
		a.file.Close()
		return fmt.Errorf("flush audit file: %w", err)
	}
	return a.file.Close()
}
