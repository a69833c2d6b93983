package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version,omitempty"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandlerConfig configures a CrashHandler.
type CrashHandlerConfig struct {
	// CrashDir receives one JSON file per report.
	CrashDir string

	Version   string
	Component string

	// Stderr receives a short summary of each report. Defaults to os.Stderr.
	Stderr io.Writer

	// OnCrash is called after a report is written.
	OnCrash func(CrashReport)
}

// CrashHandler writes crash reports for panics.
type CrashHandler struct {
	mu      sync.Mutex
	cfg     CrashHandlerConfig
	written int
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &CrashHandler{cfg: cfg}
}

// HandlePanic records a panic value and the stack it was recovered on.
// It has the signature expected by engine.WithPanicHandler.
func (h *CrashHandler) HandlePanic(v any, stack []byte) {
	h.Report(v, stack, nil)
}

// Report writes a crash report with extra context.
func (h *CrashHandler) Report(v any, stack []byte, context map[string]any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.cfg.Version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", v),
		StackTrace:   string(stack),
		Component:    h.cfg.Component,
		Context:      context,
	}

	path, err := h.writeCrashDump(report)

	fmt.Fprintf(h.cfg.Stderr, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(h.cfg.Stderr, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(h.cfg.Stderr, "Panic: %s\n", report.PanicValue)
	if err != nil {
		fmt.Fprintf(h.cfg.Stderr, "Crash dump failed: %v\n", err)
	} else if path != "" {
		fmt.Fprintf(h.cfg.Stderr, "Crash dump written to: %s\n", path)
	}

	if h.cfg.OnCrash != nil {
		h.cfg.OnCrash(report)
	}
	return report
}

// Recover must be deferred directly. It reports a panic and then re-panics
// so the process still terminates with the original trace.
func (h *CrashHandler) Recover() {
	if v := recover(); v != nil {
		h.Report(v, debug.Stack(), map[string]any{"goroutine": "main"})
		panic(v)
	}
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if h.cfg.CrashDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.cfg.CrashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	h.written++
	name := fmt.Sprintf("crash-%s-%s-%d.json",
		report.Component,
		report.Timestamp.Format("20060102-150405"),
		h.written)
	path := filepath.Join(h.cfg.CrashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports loads every report in the crash directory, oldest first.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	entries, err := os.ReadDir(h.cfg.CrashDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read crash directory: %w", err)
	}

	var reports []CrashReport
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "crash-") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(h.cfg.CrashDir, e.Name()))
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})
	return reports, nil
}
