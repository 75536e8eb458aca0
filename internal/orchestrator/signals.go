package orchestrator

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Interrupter reports whether the loop should stop before its next batch.
type Interrupter interface {
	ShouldStop() bool
}

// KillWatcher watches .phaser/signals for a "kill" file. Another process
// (or `touch .phaser/signals/kill`) can use it to stop a running loop after
// the current batch.
type KillWatcher struct {
	signalsDir string

	mu   sync.RWMutex
	stop bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// SignalsDir returns the signals directory for a project.
func SignalsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".phaser", "signals")
}

// NewKillWatcher creates the signals directory and starts watching it.
// When fsnotify is unavailable, ShouldStop falls back to polling the file.
func NewKillWatcher(projectRoot string) (*KillWatcher, error) {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	kw := &KillWatcher{
		signalsDir: dir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return kw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return kw, nil
	}
	kw.watcher = watcher

	go kw.watch()

	return kw, nil
}

func (kw *KillWatcher) killPath() string {
	return filepath.Join(kw.signalsDir, "kill")
}

func (kw *KillWatcher) watch() {
	for {
		select {
		case <-kw.done:
			return
		case event, ok := <-kw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == "kill" && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				kw.mu.Lock()
				kw.stop = true
				kw.mu.Unlock()
			}
		case _, ok := <-kw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// ShouldStop returns true once a kill signal has been seen.
func (kw *KillWatcher) ShouldStop() bool {
	if _, err := os.Stat(kw.killPath()); err == nil {
		kw.mu.Lock()
		kw.stop = true
		kw.mu.Unlock()
	}

	kw.mu.RLock()
	defer kw.mu.RUnlock()
	return kw.stop
}

// SendKill creates the kill signal file.
func (kw *KillWatcher) SendKill() error {
	return os.WriteFile(kw.killPath(), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the kill file and resets the signal, so a stale file from a
// previous run does not stop a new one.
func (kw *KillWatcher) Clear() {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	kw.stop = false
	os.Remove(kw.killPath())
}

// Close stops the watcher goroutine.
func (kw *KillWatcher) Close() error {
	var err error
	kw.once.Do(func() {
		close(kw.done)
		if kw.watcher != nil {
			err = kw.watcher.Close()
		}
	})
	return err
}
