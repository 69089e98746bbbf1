package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrBinaryNotFound is returned when no daemon binary exists at any
// configured candidate path. The agent exits with a dedicated code so
// installers can tell this apart from other startup failures.
var ErrBinaryNotFound = errors.New("no daemon binary found")

const (
	readyBanner  = "Daemon is ready"
	readyTimeout = 30 * time.Second
	killGrace    = 5 * time.Second
)

// SupervisorConfig describes the daemon to run.
type SupervisorConfig struct {
	// BinaryCandidates are tried in order; the first existing path wins.
	BinaryCandidates []string
	RepoPath         string
	APIPort          int
	GatewayPort      int
}

// Supervisor manages the lifecycle of a local daemon process.
type Supervisor struct {
	cfg    SupervisorConfig
	binary string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	lastErr error
}

// NewSupervisor resolves the daemon binary up front so a missing
// install fails fast.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	binary, err := resolveBinary(cfg.BinaryCandidates)
	if err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg, binary: binary}, nil
}

func resolveBinary(candidates []string) (string, error) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", errors.Wrapf(ErrBinaryNotFound, "tried %s", strings.Join(candidates, ", "))
}

// Start initializes the repo if needed, rewrites its config for
// loopback-only operation, and launches the daemon. It blocks until the
// daemon prints its ready banner or the ready timeout lapses.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := s.ensureRepo(ctx); err != nil {
		return err
	}
	if err := s.patchRepoConfig(); err != nil {
		return err
	}

	cmd := exec.Command(s.binary, "daemon", "--enable-gc")
	cmd.Env = append(os.Environ(), "IPFS_PATH="+s.cfg.RepoPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "could not attach to daemon stdout")
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "could not start daemon")
	}
	s.cmd = cmd

	ready := make(chan struct{})
	go s.watchOutput(stdout, ready)

	select {
	case <-ready:
	case <-time.After(readyTimeout):
		_ = cmd.Process.Kill()
		return errors.Errorf("daemon not ready within %s", readyTimeout)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}

	s.running = true
	s.lastErr = nil
	log.WithField("binary", s.binary).Info("Daemon started")

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.running = false
		if err != nil {
			s.lastErr = err
			log.WithError(err).Warn("Daemon exited")
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *Supervisor) watchOutput(r io.Reader, ready chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	signaled := false
	for scanner.Scan() {
		line := scanner.Text()
		if !signaled && strings.Contains(line, readyBanner) {
			signaled = true
			close(ready)
		}
	}
}

func (s *Supervisor) ensureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.cfg.RepoPath, "config")); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.cfg.RepoPath, 0o700); err != nil {
		return errors.Wrap(err, "could not create repo directory")
	}
	cmd := exec.CommandContext(ctx, s.binary, "init")
	cmd.Env = append(os.Environ(), "IPFS_PATH="+s.cfg.RepoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "repo init failed: %s", strings.TrimSpace(string(out)))
	}
	log.WithField("repo", s.cfg.RepoPath).Info("Initialized daemon repo")
	return nil
}

// patchRepoConfig rewrites the daemon's config so it binds loopback
// only, enables pubsub, and caps its connection manager. Keys missing
// from the stored config are created.
func (s *Supervisor) patchRepoConfig() error {
	path := filepath.Join(s.cfg.RepoPath, "config")
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "could not read daemon config")
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "could not parse daemon config")
	}

	deepMerge(cfg, map[string]interface{}{
		"Addresses": map[string]interface{}{
			"API":     fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", s.cfg.APIPort),
			"Gateway": fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", s.cfg.GatewayPort),
		},
		"Pubsub": map[string]interface{}{
			"Enabled": true,
		},
		"Swarm": map[string]interface{}{
			"ConnMgr": map[string]interface{}{
				"LowWater":    50,
				"HighWater":   200,
				"GracePeriod": "20s",
			},
		},
	})

	patched, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode daemon config")
	}
	return writeFileAtomic(path, patched)
}

// deepMerge writes patch into dst, descending into maps and creating
// missing keys.
func deepMerge(dst, patch map[string]interface{}) {
	for key, val := range patch {
		patchMap, patchIsMap := val.(map[string]interface{})
		if !patchIsMap {
			dst[key] = val
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]interface{})
		if !dstIsMap {
			dstMap = map[string]interface{}{}
			dst[key] = dstMap
		}
		deepMerge(dstMap, patchMap)
	}
}

// Stop terminates the daemon: SIGTERM first, SIGKILL after the grace
// period.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	s.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrap(err, "could not signal daemon")
	}
	deadline := time.After(killGrace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			log.Warn("Daemon ignored SIGTERM, killing")
			return errors.Wrap(cmd.Process.Kill(), "could not kill daemon")
		case <-tick.C:
			s.mu.Lock()
			stopped := !s.running
			s.mu.Unlock()
			if stopped {
				return nil
			}
		}
	}
}

// Running reports whether the daemon process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastError returns the most recent daemon exit error, if any.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
