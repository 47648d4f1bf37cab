package certs

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		CertPath: filepath.Join(dir, "certs", "sim.crt"),
		KeyPath:  filepath.Join(dir, "certs", "sim.key"),
		Hosts:    []string{"scanner.local", "192.168.1.20", "localhost"},
		Validity: 24 * time.Hour,
	}
}

func TestGenerate(t *testing.T) {
	cfg := testConfig(t)
	info, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !info.Generated {
		t.Error("Generated = false for a new certificate")
	}

	parts := strings.Split(info.Fingerprint, ":")
	if len(parts) != 32 {
		t.Fatalf("fingerprint has %d parts, want 32: %s", len(parts), info.Fingerprint)
	}
	if info.Fingerprint != strings.ToUpper(info.Fingerprint) {
		t.Errorf("fingerprint %q is not uppercase", info.Fingerprint)
	}

	keyStat, err := os.Stat(cfg.KeyPath)
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if keyStat.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 0600", keyStat.Mode().Perm())
	}

	pair, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		t.Fatalf("LoadX509KeyPair() error: %v", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate() error: %v", err)
	}
	if got := strings.Join(cert.DNSNames, ","); got != "localhost,scanner.local" {
		t.Errorf("DNSNames = %s, want localhost,scanner.local", got)
	}
	if len(cert.IPAddresses) != 2 {
		t.Errorf("IPAddresses = %v, want 127.0.0.1 and 192.168.1.20", cert.IPAddresses)
	}
	if d := cert.NotAfter.Sub(cert.NotBefore); d < 24*time.Hour || d > 25*time.Hour {
		t.Errorf("validity = %v, want about 24h", d)
	}
}

func TestEnsure_GeneratesThenLoads(t *testing.T) {
	cfg := testConfig(t)

	first, err := Ensure(cfg)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if !first.Generated {
		t.Fatal("first Ensure() should generate")
	}

	second, err := Ensure(cfg)
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if second.Generated {
		t.Error("second Ensure() should load the existing certificate")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprint changed: %s -> %s", first.Fingerprint, second.Fingerprint)
	}
}

func TestEnsure_RegeneratesWhenKeyMissing(t *testing.T) {
	cfg := testConfig(t)
	first, err := Ensure(cfg)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if err := os.Remove(cfg.KeyPath); err != nil {
		t.Fatal(err)
	}

	second, err := Ensure(cfg)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if !second.Generated || second.Fingerprint == first.Fingerprint {
		t.Error("Ensure() should generate a new certificate when the key is missing")
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load("/nonexistent/sim.crt", "/nonexistent/sim.key")
	if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("Load() error = %v, want config.invalid", err)
	}
}

func TestDefaultPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	certPath, keyPath, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error: %v", err)
	}
	if want := filepath.Join(home, ".spreads", "certs", "simulator.crt"); certPath != want {
		t.Errorf("certPath = %s, want %s", certPath, want)
	}
	if want := filepath.Join(home, ".spreads", "certs", "simulator.key"); keyPath != want {
		t.Errorf("keyPath = %s, want %s", keyPath, want)
	}
}

func TestParseFingerprint(t *testing.T) {
	cfg := testConfig(t)
	info, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	forms := []string{
		info.Fingerprint,
		strings.ToLower(info.Fingerprint),
		strings.ReplaceAll(info.Fingerprint, ":", ""),
		"  " + info.Fingerprint + "\n",
	}
	for _, fp := range forms {
		if _, err := parseFingerprint(fp); err != nil {
			t.Errorf("parseFingerprint(%q) error: %v", fp, err)
		}
	}

	for _, bad := range []string{"", "AA:BB", "zz" + strings.Repeat("00", 31)} {
		if _, err := parseFingerprint(bad); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
			t.Errorf("parseFingerprint(%q) error = %v, want config.invalid", bad, err)
		}
	}
}

func TestPinnedConfig(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	get := func(fp string) error {
		cfg, err := PinnedConfig(fp)
		if err != nil {
			t.Fatalf("PinnedConfig() error: %v", err)
		}
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}, Timeout: 5 * time.Second}
		resp, err := client.Get(ts.URL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	if err := get(Fingerprint(ts.Certificate().Raw)); err != nil {
		t.Errorf("request with the matching pin failed: %v", err)
	}

	other, err := Generate(testConfig(t))
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	err = get(other.Fingerprint)
	if err == nil || !strings.Contains(err.Error(), "pinned fingerprint") {
		t.Errorf("request with a foreign pin error = %v, want fingerprint mismatch", err)
	}
}

func TestServerConfig(t *testing.T) {
	info, err := Generate(testConfig(t))
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	cfg, err := ServerConfig(info)
	if err != nil {
		t.Fatalf("ServerConfig() error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
}
