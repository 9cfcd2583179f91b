package transport

import (
	"crypto/tls"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/indigo-web/h2pair/config"
)

// CertReloader serves the certificate from the cert and key files, reloading it every
// time the files change. A pair failing to load keeps the previous certificate in use.
type CertReloader struct {
	certFile, keyFile string
	logger            config.Logger
	cert              atomic.Pointer[tls.Certificate]
	watcher           *fsnotify.Watcher
	done              chan struct{}
}

func NewCertReloader(certFile, keyFile string, logger config.Logger) (*CertReloader, error) {
	r := &CertReloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := r.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// files are often replaced by renaming, which drops watches on the files themselves
	for _, dir := range dirsOf(r.certFile, r.keyFile) {
		if err = watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	r.watcher = watcher
	go r.watch()

	return r, nil
}

// Config returns a server TLS config serving the current certificate.
func (r *CertReloader) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		NextProtos:     []string{ProtoH2},
	}
}

func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.cert.Load(), nil
}

func (r *CertReloader) Close() error {
	err := r.watcher.Close()
	<-r.done
	return err
}

func (r *CertReloader) watch() {
	defer close(r.done)

	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !r.concerns(ev.Name) {
				continue
			}

			if err := r.reload(); err != nil {
				r.logger.Printf("reload %s: %s, keeping the previous certificate", r.certFile, err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}

			r.logger.Printf("watching certificates: %s", err)
		}
	}
}

func (r *CertReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.cert.Store(&cert)
	return nil
}

func (r *CertReloader) concerns(name string) bool {
	name = filepath.Clean(name)
	return name == r.certFile || name == r.keyFile
}

func dirsOf(files ...string) (dirs []string) {
	for _, file := range files {
		dir := filepath.Dir(file)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}
