// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package services

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/exec"
)

// LogEvent is one line of build or run output from a managed service.
type LogEvent struct {
	Service string `json:"service"`
	// Type is "stdout" or "stderr".
	Type string `json:"type"`
	// Source is "build" or "run".
	Source  string `json:"source"`
	Message string `json:"message"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Status is the last known state of one managed service.
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Pid     int    `json:"pid,omitempty"`
	Port    int    `json:"port,omitempty"`
	Url     string `json:"url,omitempty"`
}

type runningService struct {
	config ServiceConfig
	job    *exec.Job
	port   int
}

// Manager supervises the manifest's services: build, start, stop and status.
type Manager struct {
	repoRoot string
	manifest *Manifest
	runner   exec.CommandRunner
	settings config.Config
	clk      clock.Clock

	mu         sync.Mutex
	running    map[string]*runningService
	starting   map[string]struct{}
	listeners  map[int]func(LogEvent)
	listenerId int
}

// NewManager creates a service manager rooted at the repository.
// Settings may be nil when no user overrides apply.
func NewManager(
	repoRoot string,
	manifest *Manifest,
	runner exec.CommandRunner,
	settings config.Config,
) *Manager {
	return &Manager{
		repoRoot:  repoRoot,
		manifest:  manifest,
		runner:    runner,
		settings:  settings,
		clk:       clock.New(),
		running:   map[string]*runningService{},
		starting:  map[string]struct{}{},
		listeners: map[int]func(LogEvent){},
	}
}

// Subscribe registers a log event listener, returning its deregistration
// function. Events arriving after deregistration are dropped.
func (m *Manager) Subscribe(fn func(LogEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listenerId++
	id := m.listenerId
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) publish(event LogEvent) {
	m.mu.Lock()
	listeners := make([]func(LogEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// resolvePort applies the user's per-service port override from settings on
// top of the manifest value.
func (m *Manager) resolvePort(svc ServiceConfig) int {
	if m.settings == nil {
		return svc.Port
	}

	if value, ok := m.settings.Get(fmt.Sprintf("services.%s.port", svc.Name)); ok {
		if port, ok := value.(float64); ok && port > 0 {
			return int(port)
		}
	}

	return svc.Port
}

func (m *Manager) serviceConfig(name string) (ServiceConfig, string, error) {
	svc, ok := m.manifest.Get(name)
	if !ok {
		return ServiceConfig{}, "", fmt.Errorf("unknown service: %s", name)
	}

	projectDir := filepath.Join(m.repoRoot, svc.Path)
	if _, err := os.Stat(projectDir); err != nil {
		return ServiceConfig{}, "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	return svc, projectDir, nil
}

// Build stops every running service, then builds the named one. Stopping
// everything first releases the file locks services hold on shared build
// outputs.
func (m *Manager) Build(ctx context.Context, name string) error {
	stopped, err := m.stopAllRunning(ctx)
	if err != nil {
		return err
	}
	if stopped > 0 {
		// Give the OS time to release file handles on shared outputs.
		m.clk.Sleep(3 * time.Second)
	}

	svc, projectDir, err := m.serviceConfig(name)
	if err != nil {
		return err
	}

	return m.build(ctx, svc, projectDir)
}

func (m *Manager) build(ctx context.Context, svc ServiceConfig, projectDir string) error {
	if len(svc.Build) == 0 {
		return nil
	}

	job, err := m.runner.Start(ctx, exec.NewRunArgs(svc.Build[0], svc.Build[1:]...).WithCwd(projectDir))
	if err != nil {
		return fmt.Errorf("failed to start build for %s: %w", svc.Name, err)
	}

	var wg sync.WaitGroup
	m.streamLogs(&wg, job, svc.Name, "build")
	wg.Wait()

	code, err := job.Wait()
	if err != nil || code != 0 {
		return fmt.Errorf("build failed for %s (exit code %d)", svc.Name, code)
	}

	return nil
}

// Start builds and then launches the named service, streaming its output as
// log events. Fails when the service is already running or when another
// start for the same name is still in flight.
func (m *Manager) Start(ctx context.Context, name string) (Status, error) {
	m.mu.Lock()
	if _, exists := m.running[name]; exists {
		m.mu.Unlock()
		return Status{}, fmt.Errorf("service %s is already running", name)
	}
	if _, exists := m.starting[name]; exists {
		m.mu.Unlock()
		return Status{}, fmt.Errorf("service %s is already starting", name)
	}
	m.starting[name] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.starting, name)
		m.mu.Unlock()
	}()

	svc, projectDir, err := m.serviceConfig(name)
	if err != nil {
		return Status{}, err
	}

	if err := m.build(ctx, svc, projectDir); err != nil {
		return Status{}, err
	}

	env, err := environment(projectDir, svc)
	if err != nil {
		return Status{}, err
	}

	port := m.resolvePort(svc)
	args := exec.NewRunArgs(svc.Run[0], svc.Run[1:]...).WithCwd(projectDir).WithEnv(env)

	job, err := m.runner.Start(ctx, args)
	if err != nil {
		return Status{}, fmt.Errorf("failed to start %s: %w (path: %s)", name, err, projectDir)
	}

	m.mu.Lock()
	m.running[name] = &runningService{config: svc, job: job, port: port}
	m.mu.Unlock()

	m.streamLogs(nil, job, name, "run")

	// Reap the process and drop it from the running set once it exits.
	go func() {
		_, _ = job.Wait()
		m.mu.Lock()
		if current, ok := m.running[name]; ok && current.job == job {
			delete(m.running, name)
		}
		m.mu.Unlock()
		log.Printf("service %s exited", name)
	}()

	log.Printf("service %s started on port %d (pid %d)", name, port, job.Pid())

	return Status{
		Name:    name,
		Running: true,
		Pid:     job.Pid(),
		Port:    port,
		Url:     svc.Url,
	}, nil
}

// Stop terminates the named service, killing by pid with a port based
// fallback.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	svc, ok := m.running[name]
	if ok {
		delete(m.running, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("service %s is not running", name)
	}

	if err := svc.job.Kill(); err != nil {
		log.Printf("kill by pid failed for %s, falling back to port %d: %v", name, svc.port, err)
		if err := killByPort(ctx, m.runner, svc.port); err != nil {
			return fmt.Errorf("failed to stop %s: %w", name, err)
		}
	}

	// Let file handles release before any follow-up build.
	m.clk.Sleep(500 * time.Millisecond)
	return nil
}

// StartAll starts every manifest service. Starts run sequentially in
// manifest order, each build locks shared outputs the next one needs.
// Individual failures never abort the batch, they are collected and
// reported in aggregate.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, svc := range m.manifest.Services {
		if _, err := m.Start(ctx, svc.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name, err))
		}
	}

	return errors.Join(errs...)
}

// StopAll stops every running service, collecting per-service failures.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(names))

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.Stop(ctx, name); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (m *Manager) stopAllRunning(ctx context.Context) (int, error) {
	m.mu.Lock()
	count := len(m.running)
	m.mu.Unlock()

	if count == 0 {
		return 0, nil
	}

	return count, m.StopAll(ctx)
}

// Statuses reports every manifest service, running or not.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.manifest.Services))
	for _, svc := range m.manifest.Services {
		status := Status{Name: svc.Name, Port: m.resolvePort(svc), Url: svc.Url}
		if running, ok := m.running[svc.Name]; ok {
			status.Running = true
			status.Pid = running.job.Pid()
			status.Port = running.port
		}
		statuses = append(statuses, status)
	}

	return statuses
}

// healthClient tolerates the self signed certificates localhost dev services
// run with.
var healthClient = &http.Client{
	Timeout: 2 * time.Second,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

// CheckHealth probes a service URL, reporting whether it answered with a
// success status. Transport errors mean unhealthy, not failure.
func CheckHealth(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// streamLogs fans each output line of the job out to the subscribed
// listeners. When wg is non-nil the caller can wait for the streams to
// drain.
func (m *Manager) streamLogs(wg *sync.WaitGroup, job *exec.Job, service string, source string) {
	stream := func(r io.Reader, logType string) {
		if wg != nil {
			wg.Add(1)
		}
		go func() {
			if wg != nil {
				defer wg.Done()
			}
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				m.publish(LogEvent{
					Service:   service,
					Type:      logType,
					Source:    source,
					Message:   scanner.Text(),
					Timestamp: m.clk.Now().UnixMilli(),
				})
			}
		}()
	}

	stream(job.Stdout, "stdout")
	stream(job.Stderr, "stderr")
}
