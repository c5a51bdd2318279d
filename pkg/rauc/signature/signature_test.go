package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/medude/rauc/pkg/rauc/rerrors"
)

// newTestPKI generates a self-signed signing certificate and writes
// cert/key/keyring PEM files into dir. The certificate doubles as its own
// trust anchor.
func newTestPKI(t *testing.T, dir string, cn string) SigningConfig {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	certPath := filepath.Join(dir, cn+"-cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		t.Fatal(err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshalling key: %v", err)
	}
	keyPath := filepath.Join(dir, cn+"-key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	return SigningConfig{CertPath: certPath, KeyPath: keyPath, KeyringPath: certPath}
}

func writeDataFile(t *testing.T, dir string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.raucm")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestPKI(t, dir, "release")
	path := writeDataFile(t, dir, []byte("[update]\ncompatible=my-board\n"))

	p := NewCMSProvider(cfg, nil)

	sig, err := p.Sign(path)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(sig) == 0 {
		t.Fatal("Sign() returned empty signature")
	}

	if err := p.Verify(path, sig); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestPKI(t, dir, "release")
	path := writeDataFile(t, dir, []byte("[update]\ncompatible=my-board\n"))

	p := NewCMSProvider(cfg, nil)

	sig, err := p.Sign(path)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("[update]\ncompatible=other-board\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Verify(path, sig); !errors.Is(err, rerrors.ErrSignatureInvalid) {
		t.Errorf("Verify() after tamper error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	dir := t.TempDir()
	signerCfg := newTestPKI(t, dir, "rogue")
	anchorCfg := newTestPKI(t, dir, "release")
	path := writeDataFile(t, dir, []byte("payload"))

	sig, err := NewCMSProvider(signerCfg, nil).Sign(path)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// Verifier trusts only the release anchor, not the rogue signer.
	verifier := NewCMSProvider(SigningConfig{KeyringPath: anchorCfg.KeyringPath}, nil)
	if err := verifier.Verify(path, sig); !errors.Is(err, rerrors.ErrSignatureInvalid) {
		t.Errorf("Verify() with foreign signer error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsGarbageBlob(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestPKI(t, dir, "release")
	path := writeDataFile(t, dir, []byte("payload"))

	p := NewCMSProvider(cfg, nil)
	if err := p.Verify(path, []byte("not a CMS structure")); !errors.Is(err, rerrors.ErrSignatureInvalid) {
		t.Errorf("Verify() with garbage blob error = %v, want ErrSignatureInvalid", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	path := writeDataFile(t, dir, []byte("payload"))

	unsigned := NewCMSProvider(SigningConfig{}, nil)
	if _, err := unsigned.Sign(path); !errors.Is(err, rerrors.ErrContractViolation) {
		t.Errorf("Sign() without credentials error = %v, want ErrContractViolation", err)
	}
	if err := unsigned.Verify(path, []byte("sig")); !errors.Is(err, rerrors.ErrContractViolation) {
		t.Errorf("Verify() without keyring error = %v, want ErrContractViolation", err)
	}

	// A signing-only config cannot verify, and vice versa.
	cfg := newTestPKI(t, dir, "release")
	signOnly := NewCMSProvider(SigningConfig{CertPath: cfg.CertPath, KeyPath: cfg.KeyPath}, nil)
	if err := signOnly.Verify(path, []byte("sig")); !errors.Is(err, rerrors.ErrContractViolation) {
		t.Errorf("Verify() on sign-only config error = %v, want ErrContractViolation", err)
	}
}
