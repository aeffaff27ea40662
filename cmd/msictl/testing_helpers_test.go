package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/EldooRado/MsiAnalyzer/internal/testutil"
)

// sampleDB describes the database most command tests run against.
func sampleDB() *testutil.MSI {
	m := &testutil.MSI{Codepage: 1252}
	m.AddTable("Property", []testutil.Column{
		{Name: "Property", Type: testutil.TypeKey | testutil.TypeString(72)},
		{Name: "Value", Type: testutil.TypeLocalized(0)},
	},
		[]any{"ProductName", "Sample App"},
		[]any{"INSTALLDIR", `C:\Sample`},
		[]any{"CHECKJS", "var x = 1;"},
	)
	m.AddTable("CustomAction", []testutil.Column{
		{Name: "Action", Type: testutil.TypeKey | testutil.TypeString(72)},
		{Name: "Type", Type: testutil.TypeInt16},
		{Name: "Source", Type: testutil.TypeNullable | testutil.TypeString(72)},
		{Name: "Target", Type: testutil.TypeNullable | testutil.TypeString(255)},
	},
		[]any{"RunVbs", 3078, "payload", nil},
		[]any{"SetTarget", 51, "TARGETDIR", "[INSTALLDIR]bin[\\[]x[\\]]"},
		[]any{"CheckJS", 53, "CHECKJS", nil},
	)
	m.AddTable("AI_FileDownload", []testutil.Column{
		{Name: "FileDownload", Type: testutil.TypeKey | testutil.TypeString(72)},
		{Name: "URL", Type: testutil.TypeString(255)},
	}, []any{"dl1", "http://example.invalid/a.exe"})
	m.AddStream("Binary.payload", []byte("CreateObject(\"WScript.Shell\")"))
	m.AddStream("Icon.app.ico", []byte{0, 0, 1, 0})
	return m
}

// useMemFs points appFs at an in-memory filesystem holding the given MSI
// images and restores the real filesystem when the test ends.
func useMemFs(t *testing.T, files map[string]*testutil.MSI) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, m := range files {
		img := m.MustBuild(t)
		if err := afero.WriteFile(fs, path, img.Bytes, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	prev := appFs
	appFs = fs
	t.Cleanup(func() { appFs = prev })
	return fs
}

// resetFlags restores every global flag to its default.
func resetFlags() {
	verbose, quiet, jsonOut, strict = false, false, false, false
	logFile = ""
	dumpRaw, dumpAdjust = false, false
	streamsAll = false
	actionsExpand = false
	extractAdjust = false
	diffRaw = false
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	// Read captured output
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}
