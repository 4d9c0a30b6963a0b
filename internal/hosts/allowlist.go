// Package hosts restricts transfers to meetings hosted by listed accounts
package hosts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// Allowlist decides whether a meeting host may transfer recordings
type Allowlist interface {
	IsAllowed(email string) bool
	Hosts() []string
	Stats() Stats
	Reload() error
	Close() error
}

// Stats describes the loaded host list
type Stats struct {
	TotalHosts  int
	LastUpdated time.Time
	FilePath    string
	FileSize    int64
	IsWatching  bool
}

type fileAllowlist struct {
	path     string
	watch    bool
	hosts    map[string]bool
	ordered  []string
	mutex    sync.RWMutex
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stats    Stats
	closeOne sync.Once
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9._-]+\.[a-zA-Z]{2,}$`)

// New loads the allowlist named by cfg. An empty file path allows every host.
func New(cfg config.HostsConfig) (Allowlist, error) {
	a := &fileAllowlist{
		path:  cfg.File,
		watch: cfg.Watch && cfg.File != "",
		hosts: make(map[string]bool),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		stats: Stats{
			FilePath:   cfg.File,
			IsWatching: cfg.Watch && cfg.File != "",
		},
	}

	if a.path == "" {
		close(a.done)
		return a, nil
	}

	if err := a.load(); err != nil {
		return nil, fmt.Errorf("failed to load host allowlist: %w", err)
	}

	if a.watch {
		if err := a.startWatcher(); err != nil {
			return nil, fmt.Errorf("failed to watch host allowlist: %w", err)
		}
	} else {
		close(a.done)
	}

	return a, nil
}

// IsAllowed reports whether email is listed. Comparison ignores case.
func (a *fileAllowlist) IsAllowed(email string) bool {
	if a.path == "" {
		return true
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.hosts[strings.ToLower(strings.TrimSpace(email))]
}

// Hosts returns a copy of the listed hosts in file order
func (a *fileAllowlist) Hosts() []string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	result := make([]string, len(a.ordered))
	copy(result, a.ordered)
	return result
}

func (a *fileAllowlist) Stats() Stats {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.stats
}

// Reload rereads the allowlist file
func (a *fileAllowlist) Reload() error {
	if a.path == "" {
		return nil
	}
	return a.load()
}

// Close stops the file watcher, if any
func (a *fileAllowlist) Close() error {
	var err error
	a.closeOne.Do(func() {
		if a.watcher == nil {
			return
		}
		close(a.stop)
		err = a.watcher.Close()
		<-a.done
	})
	return err
}

func (a *fileAllowlist) load() error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("failed to open host list file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	hosts := make(map[string]bool)
	ordered := make([]string, 0)

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !IsValidEmail(line) {
			logging.Warn("Skipping invalid host email on line %d of %s", lineNumber, a.path)
			continue
		}

		email := strings.ToLower(line)
		if !hosts[email] {
			hosts[email] = true
			ordered = append(ordered, email)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading host list file: %w", err)
	}

	a.mutex.Lock()
	a.hosts = hosts
	a.ordered = ordered
	a.stats.TotalHosts = len(ordered)
	a.stats.LastUpdated = time.Now()
	a.stats.FileSize = fileInfo.Size()
	a.mutex.Unlock()

	return nil
}

// startWatcher watches the containing directory so editors that replace the
// file by rename are still noticed
func (a *fileAllowlist) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	a.watcher = watcher
	go a.watchChanges()
	return nil
}

func (a *fileAllowlist) watchChanges() {
	defer close(a.done)

	target := filepath.Clean(a.path)
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Give writers a moment to finish
			time.Sleep(10 * time.Millisecond)
			if err := a.load(); err != nil {
				logging.Warn("Failed to reload host allowlist %s: %v", a.path, err)
				continue
			}
			logging.Info("Reloaded host allowlist %s (%d hosts)", a.path, a.Stats().TotalHosts)

		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Host allowlist watcher error: %v", err)

		case <-a.stop:
			return
		}
	}
}

// IsValidEmail performs basic email validation
func IsValidEmail(email string) bool {
	if email == "" || strings.TrimSpace(email) != email {
		return false
	}
	if len(email) > 320 {
		return false
	}
	return emailRegex.MatchString(email)
}
