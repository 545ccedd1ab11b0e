package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// tests validateInput function
func TestValidateInput(t *testing.T) {
	tests := []struct {
		format   string
		ifExists string
		expect   bool
	}{
		{"", "", true},
		{"csv", "append", true},
		{"PARQUET", "Replace", true},
		{"json", "FAIL", true},
		{"xml", "", false},
		{"csv", "truncate", false},
		{"", "upsert", false},
	}

	for i, tc := range tests {
		err := validateInput(tc.format, tc.ifExists)
		if (err == nil) != tc.expect {
			t.Errorf("[Test case: %d] validateInput(%s,%s) expected success: %v, got error: %v", i+1, tc.format, tc.ifExists, tc.expect, err)
		}
	}
}

// tests isValidValue function
func TestIsValidValue(t *testing.T) {
	tests := []struct {
		v      string
		slice  []string
		expect bool
	}{
		{"append", supportedIfExists, true},
		{"REPLACE", supportedIfExists, true},
		{"Fail", supportedIfExists, true},
		{"appen", supportedIfExists, false},
		{"", supportedIfExists, false},
		{"", []string{}, false},
	}

	for i, tc := range tests {
		if got := isValidValue(tc.v, tc.slice); got != tc.expect {
			t.Errorf("Test case: %d, isValidValue(%s,%v) = %v, expected %v", i+1, tc.v, tc.slice, got, tc.expect)
		}
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"ls", "get", "put", "upload", "download", "rm", "query", "exec", "load", "export", "describe"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("v") == nil {
		t.Errorf("Expected klog flags on the root command")
	}
}

func writeFSConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`cloud:
  provider: fs
  root_dir: %s
storage:
  namespace: local
  default_bucket: landing
`, filepath.Join(dir, "objects"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStorageCommands(t *testing.T) {
	cfg := writeFSConfig(t)

	if _, err := runCLI(t, "--config", cfg, "put", "notes/hello.txt", "hello world"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	out, err := runCLI(t, "--config", cfg, "get", "notes/hello.txt")
	if err != nil || out != "hello world" {
		t.Fatalf("get returned %q, %v", out, err)
	}

	local := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(local, []byte("id,name\n1,a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = runCLI(t, "--config", cfg, "upload", local, "notes/data.csv")
	if err != nil || !strings.Contains(out, "multipart: false") {
		t.Fatalf("upload returned %q, %v", out, err)
	}

	out, err = runCLI(t, "--config", cfg, "ls", "notes/")
	if err != nil {
		t.Fatal(err)
	}
	if out != "notes/data.csv\nnotes/hello.txt\n" {
		t.Errorf("unexpected listing %q", out)
	}

	target := filepath.Join(t.TempDir(), "sub", "copy.csv")
	if _, err := runCLI(t, "--config", cfg, "download", "notes/data.csv", target); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if data, err := os.ReadFile(target); err != nil || string(data) != "id,name\n1,a\n" {
		t.Errorf("unexpected download %q, %v", data, err)
	}

	if _, err := runCLI(t, "--config", cfg, "rm", "notes/hello.txt"); err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if _, err := runCLI(t, "--config", cfg, "get", "notes/hello.txt"); err == nil {
		t.Errorf("Expected error reading deleted object")
	}
}

func TestWarehouseCommandsNeedWarehouseSection(t *testing.T) {
	cfg := writeFSConfig(t)
	if _, err := runCLI(t, "--config", cfg, "query", "SELECT 1 FROM DUAL"); err == nil || !strings.Contains(err.Error(), "warehouse") {
		t.Errorf("Expected missing warehouse error, got %v", err)
	}
}

func TestLoadRejectsInvalidFlags(t *testing.T) {
	cfg := writeFSConfig(t)
	if _, err := runCLI(t, "--config", cfg, "load", "SALES", "a.csv", "--if-exists", "truncate"); err == nil {
		t.Errorf("Expected invalid if-exists error")
	}
	if _, err := runCLI(t, "--config", cfg, "load", "SALES"); err == nil {
		t.Errorf("Expected error without objects or prefix")
	}
}
