package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.hasError && err == nil {
				t.Error("expected error")
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("json: got %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("text: got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		level, _ := ParseLevel(s)
		if got := LevelString(level); got != s {
			t.Errorf("LevelString(%s) = %s", s, got)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected info level, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected stderr output, got %s", cfg.Output)
	}
	if cfg.Component != "keyremap" {
		t.Errorf("expected component keyremap, got %s", cfg.Component)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{
		Level:     LevelDebug,
		Format:    FormatJSON,
		Component: "engine",
		Writer:    &buf,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Debug("mapping triggered", "mapping", "m1", "key", "f1", "api_token", "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["msg"] != "mapping triggered" {
		t.Errorf("unexpected msg %v", rec["msg"])
	}
	if rec["component"] != "engine" {
		t.Errorf("unexpected component %v", rec["component"])
	}
	if rec["key"] != "f1" {
		t.Errorf("key attribute should not be redacted, got %v", rec["key"])
	}
	if rec["api_token"] != "[REDACTED]" {
		t.Errorf("api_token should be redacted, got %v", rec["api_token"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelWarn, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn record missing")
	}
}

func TestShouldRedact(t *testing.T) {
	redacted := []string{"password", "db_secret", "AccessToken", "credential", "cookie", "Authorization"}
	for _, k := range redacted {
		if !shouldRedact(k) {
			t.Errorf("%s should be redacted", k)
		}
	}
	kept := []string{"key", "mapping", "source", "target", "event", "stop_key"}
	for _, k := range kept {
		if shouldRedact(k) {
			t.Errorf("%s should not be redacted", k)
		}
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.WithComponent("backend").Info("hook installed")
	if !strings.Contains(buf.String(), "component=backend") {
		t.Errorf("component missing: %s", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keyremap.log")
	l, err := New(&Config{Output: "file", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("engine started")
	if err := l.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), "engine started") {
		t.Errorf("record missing from file: %s", data)
	}
}

func newTestRotator(t *testing.T, cfg *Config) *FileRotator {
	t.Helper()
	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	r := newTestRotator(t, &Config{FilePath: logPath, MaxSize: 1, MaxBackups: 2})

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	// Every write after the first overflows 1 MB, so three rotations
	// happened and MaxBackups pruned the oldest.
	files := r.LogFiles()
	if len(files) != 3 {
		t.Fatalf("expected current file plus 2 backups, got %v", files)
	}
	if files[0] != logPath {
		t.Errorf("first entry should be the live file, got %s", files[0])
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("live file should hold one chunk, has %d bytes", info.Size())
	}
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	r := newTestRotator(t, &Config{FilePath: logPath, MaxSize: 1, MaxBackups: 5, Compress: true})

	first := bytes.Repeat([]byte("a"), 700*1024)
	if _, err := r.Write(first); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write(first); err != nil {
		t.Fatal(err)
	}

	files := r.LogFiles()
	if len(files) != 2 || !strings.HasSuffix(files[1], ".log.gz") {
		t.Fatalf("expected one gzipped backup, got %v", files)
	}

	f, err := os.Open(files[1])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, first) {
		t.Error("decompressed backup does not match the rotated content")
	}
}

func TestCrashHandlerReport(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	var seen []CrashReport

	h := NewCrashHandler(CrashHandlerConfig{
		CrashDir:  dir,
		Version:   "test",
		Component: "engine",
		Stderr:    &stderr,
		OnCrash:   func(r CrashReport) { seen = append(seen, r) },
	})

	h.HandlePanic(errors.New("boom"), []byte("goroutine 7 [running]:"))
	h.Report("second", nil, map[string]any{"mapping": "m1"})

	if len(seen) != 2 {
		t.Fatalf("expected 2 OnCrash calls, got %d", len(seen))
	}
	if !strings.Contains(stderr.String(), "Panic: boom") {
		t.Errorf("stderr summary missing: %s", stderr.String())
	}

	reports, err := h.CrashReports()
	if err != nil {
		t.Fatalf("CrashReports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports on disk, got %d", len(reports))
	}
	values := map[string]bool{}
	for _, r := range reports {
		values[r.PanicValue] = true
		if r.Component != "engine" || r.Version != "test" {
			t.Errorf("unexpected report metadata %+v", r)
		}
	}
	if !values["boom"] || !values["second"] {
		t.Errorf("unexpected panic values %v", values)
	}
}

func TestCrashHandlerRecoverRepanics(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(CrashHandlerConfig{CrashDir: dir, Stderr: io.Discard})

	func() {
		defer func() {
			if v := recover(); v != "fatal" {
				t.Errorf("expected re-panic with original value, got %v", v)
			}
		}()
		defer h.Recover()
		panic("fatal")
	}()

	reports, err := h.CrashReports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Context["goroutine"] != "main" {
		t.Errorf("expected one report from Recover, got %+v", reports)
	}
}

func TestCrashReportsMissingDir(t *testing.T) {
	h := NewCrashHandler(CrashHandlerConfig{CrashDir: filepath.Join(t.TempDir(), "none")})
	reports, err := h.CrashReports()
	if err != nil || reports != nil {
		t.Errorf("expected no reports and no error, got %v, %v", reports, err)
	}
}
