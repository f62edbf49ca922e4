package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadEnvFileLoadsAndPreservesExisting(t *testing.T) {
	t.Setenv("SESSIONKIT_TEST_EXISTING", "from-env")
	file := filepath.Join(t.TempDir(), "test.env")
	content := "# comment\nSESSIONKIT_TEST_EXISTING=from-file\nSESSIONKIT_TEST_NEW=hello\nSESSIONKIT_TEST_QUOTED=\"x\"\nINVALID_LINE\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	for _, key := range []string{"SESSIONKIT_TEST_NEW", "SESSIONKIT_TEST_QUOTED"} {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	if err := LoadEnvFile(file); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("SESSIONKIT_TEST_EXISTING"); got != "from-env" {
		t.Fatalf("expected existing var to be preserved, got %q", got)
	}
	if got := os.Getenv("SESSIONKIT_TEST_NEW"); got != "hello" {
		t.Fatalf("unexpected SESSIONKIT_TEST_NEW=%q", got)
	}
	if got := os.Getenv("SESSIONKIT_TEST_QUOTED"); got != "x" {
		t.Fatalf("unexpected SESSIONKIT_TEST_QUOTED=%q", got)
	}
}

func TestLoadEnvFileOpenError(t *testing.T) {
	dir := t.TempDir()
	err := LoadEnvFile(dir)
	if err == nil {
		t.Fatal("expected error when path is a directory")
	}
	if !strings.Contains(err.Error(), "env file:") {
		t.Fatalf("unexpected error shape: %v", err)
	}
}

func FuzzLoadEnvFileRobustness(f *testing.F) {
	f.Add([]byte("KEY=value\nANOTHER=ok\n"))
	f.Add([]byte("INVALID_LINE\n# comment\n QUOTED = \"x\" \n"))
	f.Add([]byte("NO_EQUALS_LINE\nBROKEN"))
	f.Add(bytes.Repeat([]byte("A"), 70000))

	f.Fuzz(func(t *testing.T, content []byte) {
		if len(content) > 200000 {
			content = content[:200000]
		}

		file := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(file, content, 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}

		classify := func(err error) string {
			switch {
			case err == nil:
				return "none"
			case strings.Contains(err.Error(), "open env file:"):
				return "open"
			case strings.Contains(err.Error(), "read env file:"):
				return "read"
			default:
				return "other"
			}
		}

		c1 := classify(LoadEnvFile(file))
		c2 := classify(LoadEnvFile(file))
		if c1 != c2 {
			t.Fatalf("error classification must be deterministic: first=%q second=%q", c1, c2)
		}
		if c1 == "other" {
			t.Fatalf("unexpected error class %q", c1)
		}
	})
}
