package recovery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// OptionsFor lists bypass methods for a classified error. Non-blocking
// errors need no bypass; blocking errors marked non-bypassable get none.
func OptionsFor(cls Classification) BypassOptions {
	if cls.Severity == SeverityNonBlocking {
		return BypassOptions{Available: false, Reason: "non-blocking errors do not require a bypass"}
	}
	if !cls.Bypassable {
		return BypassOptions{Available: false, Reason: fmt.Sprintf("%s cannot be bypassed", cls.Category)}
	}

	methods := []Method{MethodPrefix, MethodEnvironment, MethodDevelopmentMode}
	if cls.Severity == SeverityBlocking {
		methods = append(methods, MethodEmergency)
	}
	return BypassOptions{Available: true, Methods: methods}
}

// AuditLog is the append-only bypass audit trail. Entries are JSON
// lines; nothing ever rewrites or deletes them.
type AuditLog struct {
	path string

	mu sync.Mutex
}

// NewAuditLog creates a log backed by the file at path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Record appends one bypass record.
func (l *AuditLog) Record(rec BypassRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.AuditTrail.Timestamp.IsZero() {
		rec.AuditTrail.Timestamp = rec.Timestamp
	}
	if rec.AuditTrail.BypassType == "" {
		rec.AuditTrail.BypassType = string(rec.Method)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal bypass record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// Trail replays the full audit log, oldest first. Malformed lines are
// skipped rather than hiding the rest of the trail.
func (l *AuditLog) Trail() ([]BypassRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []BypassRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec BypassRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}
