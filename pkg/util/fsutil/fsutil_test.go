package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsWithin(t *testing.T) {
	tt := []struct {
		base     string
		target   string
		expected bool
	}{
		{"/tmp/ws", "/tmp/ws", true},
		{"/tmp/ws", "/tmp/ws/abc/layer.tar", true},
		{"/tmp/ws", "/tmp/ws/../ws/manifest.json", true},
		{"/tmp/ws", "/tmp/ws2/manifest.json", false},
		{"/tmp/ws", "/tmp", false},
		{"/tmp/ws", "/etc/passwd", false},
		{"/tmp/ws", "/tmp/ws/..data", true},
	}

	for _, test := range tt {
		if got := IsWithin(test.base, test.target); got != test.expected {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", test.base, test.target, got, test.expected)
		}
	}
}

func TestRelPath(t *testing.T) {
	rel, err := RelPath("/tmp/ws", "/tmp/ws/abc/sha256:123")
	if err != nil {
		t.Fatalf("RelPath failed: %v", err)
	}

	if rel != "abc/sha256:123" {
		t.Errorf("RelPath = %q, want %q", rel, "abc/sha256:123")
	}

	if _, err := RelPath("/tmp/ws", "/tmp/other"); err != ErrPathOutsideDir {
		t.Errorf("RelPath outside base: err = %v, want %v", err, ErrPathOutsideDir)
	}
}

func TestSetModTime(t *testing.T) {
	tmpDir := t.TempDir()

	filePath := filepath.Join(tmpDir, "manifest.json")
	if err := os.WriteFile(filePath, []byte("[]"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	linkPath := filepath.Join(tmpDir, "sha256:link")
	if err := os.Symlink("manifest.json", linkPath); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	epoch := time.Unix(0, 0)
	for _, target := range []string{filePath, linkPath} {
		if err := SetModTime(target, epoch); err != nil {
			t.Fatalf("SetModTime(%q) failed: %v", target, err)
		}

		info, err := os.Lstat(target)
		if err != nil {
			t.Fatalf("failed to stat %q: %v", target, err)
		}

		if !info.ModTime().Equal(epoch) {
			t.Errorf("mtime(%q) = %v, want %v", target, info.ModTime(), epoch)
		}
	}
}

func TestFileTypeChecks(t *testing.T) {
	tmpDir := t.TempDir()

	regPath := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(regPath, []byte("data"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	linkPath := filepath.Join(tmpDir, "link.txt")
	if err := os.Symlink(regPath, linkPath); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	if !DirExists(tmpDir) || DirExists(regPath) || DirExists(filepath.Join(tmpDir, "missing")) {
		t.Error("DirExists returned unexpected results")
	}

	if !IsSymlink(linkPath) || IsSymlink(regPath) {
		t.Error("IsSymlink returned unexpected results")
	}
}
