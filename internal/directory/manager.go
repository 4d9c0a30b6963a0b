// Package directory manages the per-invocation local working directories
package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/curtbushko/zoom-transfer/internal/filename"
)

// DirectoryManager defines the interface for invocation directory operations
type DirectoryManager interface {
	Prepare(requestID string) (*DirectoryResult, error)
	GetStats() DirectoryStats
}

// DirectoryConfig holds configuration for the directory manager
type DirectoryConfig struct {
	BaseDirectory string // Root for all invocation directories
	CreateDirs    bool   // Whether to create directories if they don't exist
}

// DirectoryResult describes a prepared invocation directory
type DirectoryResult struct {
	FullPath     string // Absolute path artifacts are written to
	BasePath     string // Base directory path
	RelativePath string // Relative path from base directory
}

// FilePath joins an artifact file name onto the directory
func (dr *DirectoryResult) FilePath(name string) string {
	return filepath.Join(dr.FullPath, name)
}

// DirectoryStats provides statistics about directory operations
type DirectoryStats struct {
	DirectoriesCreated int
	BaseDirectory      string
	LastCreated        time.Time
}

type directoryManagerImpl struct {
	config DirectoryConfig
	mu     sync.Mutex
	stats  DirectoryStats
}

// NewDirectoryManager creates a new directory manager with the given configuration
func NewDirectoryManager(config DirectoryConfig) DirectoryManager {
	return &directoryManagerImpl{
		config: config,
		stats: DirectoryStats{
			BaseDirectory: config.BaseDirectory,
		},
	}
}

// Prepare returns the directory for one invocation: <base>/<requestID>
func (dm *directoryManagerImpl) Prepare(requestID string) (*DirectoryResult, error) {
	if dm.config.BaseDirectory == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}

	name := filename.Sanitize(requestID)
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid request id %q", requestID)
	}

	fullPath := filepath.Join(dm.config.BaseDirectory, name)

	if dm.config.CreateDirs {
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", fullPath, err)
		}

		dm.mu.Lock()
		dm.stats.DirectoriesCreated++
		dm.stats.LastCreated = time.Now()
		dm.mu.Unlock()
	}

	return &DirectoryResult{
		FullPath:     fullPath,
		BasePath:     dm.config.BaseDirectory,
		RelativePath: name,
	}, nil
}

// GetStats returns statistics about directory operations
func (dm *directoryManagerImpl) GetStats() DirectoryStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.stats
}
