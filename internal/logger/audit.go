package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// SetAuditWriter directs per-upload audit dumps (coercion warnings, skipped
// rows) to w. A nil writer disables the audit trail.
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

// AuditSection is one titled block of an audit entry.
type AuditSection struct {
	Title string
	Lines []string
}

// Audit writes one entry tagged with kind and subject.
func Audit(kind, subject string, sections ...AuditSection) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if subject != "" {
		b.WriteString("[" + subject + "]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- " + t + " ---\n")
		for _, line := range sec.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
