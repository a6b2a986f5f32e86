// Package cert loads and hot-reloads the TLS certificate the HTTP surface
// serves when TLS is enabled, so a cert rotation never requires a restart.
package cert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"edfhub/internal/logging"
)

// Source describes where a certificate/key pair comes from. A file-based
// source is watched for changes; a PEM-based source is loaded once.
type Source struct {
	CertPEM, KeyPEM   string
	CertFile, KeyFile string
}

type certEntry struct {
	cert atomic.Pointer[tls.Certificate]
}

// Manager holds named certificate/key pairs, serving tls.Config.GetCertificate
// by SNI or by a configured default name. Safe for concurrent use.
type Manager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	certs       map[string]*certEntry
	defaultName string
	fileSources map[string]Source

	watcher     *fsnotify.Watcher
	watcherStop chan struct{}
}

// Config bundles Manager construction parameters.
type Config struct {
	Logger *slog.Logger
}

// New creates an empty Manager; load certificates with LoadFromConfig.
func New(cfg Config) *Manager {
	return &Manager{
		logger: logging.Default(cfg.Logger).With("component", "cert"),
		certs:  make(map[string]*certEntry),
	}
}

// LoadFromConfig replaces every held certificate with sources, identified by
// defaultName for SNI-less connections. File-backed sources are watched for
// changes and hot-swapped; PEM-backed sources load once.
func (m *Manager) LoadFromConfig(defaultName string, sources map[string]Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopWatcherLocked()

	certs := make(map[string]*certEntry, len(sources))
	fileSources := make(map[string]Source)

	for name, src := range sources {
		certPEM, keyPEM := src.CertPEM, src.KeyPEM
		if src.CertFile != "" && src.KeyFile != "" {
			fileSources[name] = src
			var err error
			certPEM, keyPEM, err = readPEMFiles(src.CertFile, src.KeyFile)
			if err != nil {
				m.logger.Warn("load certificate from files failed", "name", name, "error", err)
				continue
			}
		}
		if certPEM == "" || keyPEM == "" {
			continue
		}
		cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			m.logger.Warn("parse certificate failed", "name", name, "error", err)
			continue
		}
		entry := &certEntry{}
		entry.cert.Store(&cert)
		certs[name] = entry
	}

	m.certs = certs
	m.defaultName = defaultName
	m.fileSources = fileSources

	if len(fileSources) > 0 {
		m.startWatcherLocked()
	}
	return nil
}

func (m *Manager) stopWatcherLocked() {
	if m.watcherStop != nil {
		close(m.watcherStop)
		m.watcherStop = nil
	}
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}

func (m *Manager) startWatcherLocked() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("certificate watcher unavailable, hot-reload disabled", "error", err)
		return
	}
	m.watcher = watcher
	m.watcherStop = make(chan struct{})

	pathToName := make(map[string]string, len(m.fileSources)*2)
	for name, src := range m.fileSources {
		pathToName[src.CertFile] = name
		pathToName[src.KeyFile] = name
		if err := watcher.Add(src.CertFile); err != nil {
			m.logger.Warn("watch certificate file", "file", src.CertFile, "error", err)
		}
		if err := watcher.Add(src.KeyFile); err != nil {
			m.logger.Warn("watch key file", "file", src.KeyFile, "error", err)
		}
	}

	stop := m.watcherStop
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("certificate watcher error", "error", err)
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if name, ok := pathToName[ev.Name]; ok {
					m.reloadFileCert(name)
				}
			}
		}
	}()
}

func (m *Manager) reloadFileCert(name string) {
	m.mu.RLock()
	src, ok := m.fileSources[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	certPEM, keyPEM, err := readPEMFiles(src.CertFile, src.KeyFile)
	if err != nil {
		m.logger.Warn("reload certificate from files failed", "name", name, "error", err)
		return
	}
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		m.logger.Warn("reload certificate parse failed", "name", name, "error", err)
		return
	}
	m.mu.Lock()
	if entry, ok := m.certs[name]; ok {
		entry.cert.Store(&cert)
	}
	m.mu.Unlock()
	m.logger.Info("certificate reloaded", "name", name)
}

func readPEMFiles(certFile, keyFile string) (certPEM, keyPEM string, err error) {
	certB, err := os.ReadFile(certFile)
	if err != nil {
		return "", "", fmt.Errorf("read certificate: %w", err)
	}
	keyB, err := os.ReadFile(keyFile)
	if err != nil {
		return "", "", fmt.Errorf("read key: %w", err)
	}
	return string(certB), string(keyB), nil
}

// GetCertificate is a tls.Config.GetCertificate callback: looks up by SNI,
// falling back to the configured default name when SNI is absent.
func (m *Manager) GetCertificate(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	name := clientHello.ServerName
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.defaultName
	}
	if name == "" {
		return nil, nil
	}
	entry, ok := m.certs[name]
	if !ok {
		return nil, nil
	}
	return entry.cert.Load(), nil
}

// Certificate returns the current certificate for name, or nil if unknown.
func (m *Manager) Certificate(name string) *tls.Certificate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.certs[name]
	if !ok {
		return nil
	}
	return entry.cert.Load()
}

// TLSConfig returns a *tls.Config wired to this manager's GetCertificate.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
	}
}

// AddFromPEM registers a single certificate by name, useful in tests and
// one-shot CLI paths that have PEM bytes in hand and no reload requirement.
func (m *Manager) AddFromPEM(name, certPEM, keyPEM string) error {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return err
	}
	entry := &certEntry{}
	entry.cert.Store(&cert)

	m.mu.Lock()
	m.certs[name] = entry
	m.mu.Unlock()
	return nil
}

// SetDefault sets the certificate name used when GetCertificate sees no SNI.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	m.defaultName = name
	m.mu.Unlock()
}
