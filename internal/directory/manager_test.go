package directory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name        string
		requestID   string
		expectedRel string
		expectError bool
	}{
		{
			name:        "generated request id",
			requestID:   "req-3f1c2a9e-0b7d-4e59-9d1a-3c8f2b6e7a10",
			expectedRel: "req-3f1c2a9e-0b7d-4e59-9d1a-3c8f2b6e7a10",
		},
		{
			name:        "path separators are sanitized",
			requestID:   "../../etc/passwd",
			expectedRel: ".._.._etc_passwd",
		},
		{
			name:        "empty request id",
			requestID:   "",
			expectError: true,
		},
		{
			name:        "dot dot",
			requestID:   "..",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			dm := NewDirectoryManager(DirectoryConfig{BaseDirectory: base, CreateDirs: true})

			result, err := dm.Prepare(tt.requestID)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}

			if result.RelativePath != tt.expectedRel {
				t.Errorf("RelativePath = %q, want %q", result.RelativePath, tt.expectedRel)
			}
			if result.FullPath != filepath.Join(base, tt.expectedRel) {
				t.Errorf("FullPath = %q", result.FullPath)
			}
			info, err := os.Stat(result.FullPath)
			if err != nil || !info.IsDir() {
				t.Errorf("directory %s was not created", result.FullPath)
			}
			if got := result.FilePath("a.json"); got != filepath.Join(base, tt.expectedRel, "a.json") {
				t.Errorf("FilePath() = %q", got)
			}
		})
	}
}

func TestPrepareWithoutCreate(t *testing.T) {
	base := t.TempDir()
	dm := NewDirectoryManager(DirectoryConfig{BaseDirectory: base})

	result, err := dm.Prepare("req-1")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := os.Stat(result.FullPath); !os.IsNotExist(err) {
		t.Errorf("directory should not exist, stat error = %v", err)
	}
	if dm.GetStats().DirectoriesCreated != 0 {
		t.Errorf("DirectoriesCreated = %d, want 0", dm.GetStats().DirectoriesCreated)
	}
}

func TestPrepareEmptyBase(t *testing.T) {
	dm := NewDirectoryManager(DirectoryConfig{})
	if _, err := dm.Prepare("req-1"); err == nil {
		t.Error("Expected error for empty base directory")
	}
}

func TestPrepareConcurrentStats(t *testing.T) {
	base := t.TempDir()
	dm := NewDirectoryManager(DirectoryConfig{BaseDirectory: base, CreateDirs: true})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := dm.Prepare(filepath.Base(t.Name()) + "-" + string(rune('a'+i))); err != nil {
				t.Errorf("Prepare() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	stats := dm.GetStats()
	if stats.DirectoriesCreated != 10 {
		t.Errorf("DirectoriesCreated = %d, want 10", stats.DirectoriesCreated)
	}
	if stats.BaseDirectory != base {
		t.Errorf("BaseDirectory = %q", stats.BaseDirectory)
	}
	if stats.LastCreated.IsZero() {
		t.Error("LastCreated not set")
	}
}
