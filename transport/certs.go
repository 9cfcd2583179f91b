package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/indigo-web/h2pair/config"
	"golang.org/x/crypto/acme/autocert"
)

var ErrNoDomains = errors.New("no domains to issue certificates for")

// ServerConfig picks the certificates source: cert and key files if set, a self-signed
// certificate if the address is a loopback one or no domains are configured, and Let's
// Encrypt via autocert otherwise.
func ServerConfig(cfg config.TLS, addr string) (*tls.Config, error) {
	switch {
	case len(cfg.CertFile) > 0 || len(cfg.KeyFile) > 0:
		return FileConfig(cfg.CertFile, cfg.KeyFile)
	case isLoopback(addr) || len(cfg.Domains) == 0:
		return SelfSignedConfig(cfg.CacheDir)
	default:
		return AutocertConfig(cfg.CacheDir, cfg.Domains...)
	}
}

func FileConfig(cert, key string) (*tls.Config, error) {
	certificate, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		NextProtos:   []string{ProtoH2},
	}, nil
}

// SelfSignedConfig generates a certificate for localhost, caching it in the directory.
// Already cached ones are reused.
func SelfSignedConfig(cacheDir string) (*tls.Config, error) {
	cert, key, err := generateSelfSignedCert(cacheDir)
	if err != nil {
		return nil, err
	}

	return FileConfig(cert, key)
}

// AutocertConfig issues certificates for the domains via ACME. Accepting the TOS is
// implied.
func AutocertConfig(cacheDir string, domains ...string) (*tls.Config, error) {
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
	}

	if err := mkdirIfNotExists(cacheDir); err != nil {
		return nil, err
	}

	m.Cache = autocert.DirCache(cacheDir)
	return withH2(m.TLSConfig()), nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	if host == "localhost" || len(host) == 0 {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func generateSelfSignedCert(cache string) (cert, key string, err error) {
	var (
		certFilename = filepath.Join(cache, "localhost.crt")
		keyFilename  = filepath.Join(cache, "localhost.key")
	)

	if certExists(certFilename, keyFilename) {
		return certFilename, keyFilename, nil
	}

	if err := mkdirIfNotExists(cache); err != nil {
		return "", "", err
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", err
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(10 * 365 * 24 * time.Hour) // 10 years validity

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Localhost"}},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(certFilename, "CERTIFICATE", certDER); err != nil {
		return "", "", err
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}

	if err = writePEM(keyFilename, "PRIVATE KEY", privBytes); err != nil {
		return "", "", err
	}

	return certFilename, keyFilename, nil
}

func writePEM(filename, blockType string, data []byte) error {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err = pem.Encode(file, &pem.Block{Type: blockType, Bytes: data}); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}

func mkdirIfNotExists(dir string) error {
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		return nil
	}

	return os.MkdirAll(dir, 0700)
}

func certExists(cert, key string) bool {
	return fileExists(cert) && fileExists(key)
}

func fileExists(filename string) bool {
	stat, err := os.Stat(filename)

	return err == nil && !stat.IsDir()
}
