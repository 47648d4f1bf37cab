// Package certs manages the simulator's self-signed certificate and the
// client side of trusting it by fingerprint.
//
// A spreads scanner on a home network has no CA-issued certificate. The
// simulator generates one on first use and prints its SHA-256 fingerprint;
// clients pin that fingerprint instead of consulting the system roots.
package certs

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

// DefaultValidity is the lifetime of a generated certificate.
const DefaultValidity = 365 * 24 * time.Hour

// Config selects where the certificate lives and what it covers.
type Config struct {
	// CertPath and KeyPath default to ~/.spreads/certs/simulator.{crt,key}.
	CertPath string
	KeyPath  string

	// Hosts become subject alternative names. localhost and 127.0.0.1
	// are always included.
	Hosts []string

	// Validity defaults to DefaultValidity.
	Validity time.Duration
}

// Info describes a loaded or generated certificate.
type Info struct {
	CertPath    string
	KeyPath     string
	Fingerprint string
	NotAfter    time.Time
	Generated   bool
}

// DefaultPaths returns ~/.spreads/certs/simulator.crt and simulator.key.
func DefaultPaths() (certPath, keyPath string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".spreads", "certs")
	return filepath.Join(dir, "simulator.crt"), filepath.Join(dir, "simulator.key"), nil
}

// Ensure loads the certificate at cfg's paths, generating a new one when
// either file is missing or the existing one has expired.
func Ensure(cfg Config) (*Info, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		certPath, keyPath, err := DefaultPaths()
		if err != nil {
			return nil, err
		}
		if cfg.CertPath == "" {
			cfg.CertPath = certPath
		}
		if cfg.KeyPath == "" {
			cfg.KeyPath = keyPath
		}
	}

	if fileExists(cfg.CertPath) && fileExists(cfg.KeyPath) {
		info, err := Load(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		if time.Now().Before(info.NotAfter) {
			return info, nil
		}
	}
	return Generate(cfg)
}

// Load reads an existing certificate pair.
func Load(certPath, keyPath string) (*Info, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "load certificate pair", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "parse certificate", err)
	}
	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert.Raw),
		NotAfter:    cert.NotAfter,
	}, nil
}

// Generate writes a new ECDSA P-256 self-signed certificate and key.
func Generate(cfg Config) (*Info, error) {
	validity := cfg.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now().Add(-time.Minute)
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"spreads"},
			CommonName:   "spreads simulator",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hostList(cfg.Hosts) {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := writePEM(cfg.CertPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(cfg.KeyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}

	return &Info{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: Fingerprint(der),
		NotAfter:    template.NotAfter,
		Generated:   true,
	}, nil
}

// hostList adds the loopback names to hosts, without duplicates.
func hostList(hosts []string) []string {
	out := []string{"localhost", "127.0.0.1"}
	seen := map[string]bool{"localhost": true, "127.0.0.1": true}
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Fingerprint returns the SHA-256 of a DER certificate as colon-separated
// uppercase hex, e.g. "AA:BB:...".
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// parseFingerprint accepts upper or lower case hex with or without colons.
func parseFingerprint(fp string) ([]byte, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(fp), ":", "")
	raw, err := hex.DecodeString(clean)
	if err != nil || len(raw) != sha256.Size {
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("fingerprint %q is not a SHA-256 hex digest", fp))
	}
	return raw, nil
}

// ServerConfig returns a TLS server configuration for the certificate.
func ServerConfig(info *Info) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(info.CertPath, info.KeyPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "load certificate pair", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// errFingerprintMismatch is returned from the handshake when the server
// presents a certificate other than the pinned one.
var errFingerprintMismatch = errors.New("server certificate does not match the pinned fingerprint")

// PinnedConfig returns a client configuration that accepts exactly the
// certificate with the given fingerprint. Chain and hostname checks are
// replaced by the pin.
func PinnedConfig(fingerprint string) (*tls.Config, error) {
	want, err := parseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errFingerprintMismatch
			}
			got := sha256.Sum256(rawCerts[0])
			if !bytes.Equal(got[:], want) {
				return errFingerprintMismatch
			}
			return nil
		},
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
