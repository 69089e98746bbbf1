// Package agent runs the desktop storage agent: it supervises a local
// content-addressed daemon, answers proof-of-access challenges from
// validators, and exposes a loopback API for the client UI.
package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "agent")

// Config is the agent's local configuration file.
type Config struct {
	HiveUsername string `json:"hiveUsername"`
	IpfsRepoPath string `json:"ipfsRepoPath"`
	APIPort      int    `json:"apiPort"`
	AutoStart    bool   `json:"autoStart"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		IpfsRepoPath: filepath.Join(home, ".spk-agent", "ipfs"),
		APIPort:      5111,
	}
}

// ConfigStore persists the agent configuration and reloads it when the
// file changes on disk.
type ConfigStore struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// LoadConfigStore reads the config at path, writing defaults when the
// file does not exist yet.
func LoadConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.cfg = DefaultConfig()
		if err := s.save(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrap(err, "could not read agent config")
	default:
		cfg := DefaultConfig()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "could not parse agent config")
		}
		s.cfg = cfg
	}
	return s, nil
}

// Config returns a copy of the current configuration.
func (s *ConfigStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Update applies fn to the configuration and writes it back atomically.
func (s *ConfigStore) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	return s.save()
}

func (s *ConfigStore) save() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode agent config")
	}
	return writeFileAtomic(s.path, data)
}

// Watch reloads the config whenever the file changes, until ctx ends.
// Reload failures are logged and the previous config stays in effect.
func (s *ConfigStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create config watcher")
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "could not watch config directory")
	}
	go func() {
		defer func() {
			_ = watcher.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					log.WithError(err).Warn("Ignoring config change")
				} else {
					log.Info("Reloaded agent config")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Config watcher error")
			}
		}
	}()
	return nil
}

func (s *ConfigStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "could not read agent config")
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "could not parse agent config")
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory
// and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "could not create config directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "could not write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "could not close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "could not replace file")
}
