package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
outstations:
  - id: rtu1
    station: 5
    transport: {type: tcp, address: "127.0.0.1:0"}
    points:
      digital_modules: [{module: 10, start_index: 0}]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "outstation rtu1: station 5") || !strings.Contains(out, "16 digital") {
		t.Errorf("unexpected output:\n%s", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("outstations: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "validate", "--config", bad); err == nil {
		t.Error("validate accepted a config without outstations")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "md3gw dev\n" {
		t.Errorf("version output = %q", out)
	}
}
