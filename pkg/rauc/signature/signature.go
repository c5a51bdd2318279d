// Package signature produces and verifies detached CMS signatures over
// bundle manifests.
//
// Signing needs a certificate and private key; verification needs a keyring
// of trust-anchor certificates. All three are PEM files. The signature blob
// itself is opaque DER owned by the CMS layer; callers store and pass it as
// raw bytes.
package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"go.mozilla.org/pkcs7"

	"github.com/medude/rauc/pkg/rauc/rerrors"
)

// SigningConfig carries the credential paths for one signing identity.
// It replaces any process-global certificate state: callers construct it
// from their own configuration and hand it to NewCMSProvider explicitly.
type SigningConfig struct {
	CertPath    string // signer certificate (PEM)
	KeyPath     string // signer private key (PEM, PKCS#8 / PKCS#1 / SEC1)
	KeyringPath string // trust anchors for verification (PEM bundle)
}

// CMSProvider signs and verifies files with detached CMS SignedData.
type CMSProvider struct {
	cfg SigningConfig
	log hclog.Logger
}

// NewCMSProvider creates a provider for the given credentials. The paths are
// not opened here; each operation validates the credentials it needs so that
// a verify-only deployment never has to configure a signing key.
func NewCMSProvider(cfg SigningConfig, logger hclog.Logger) *CMSProvider {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CMSProvider{cfg: cfg, log: logger}
}

// Sign produces a detached CMS signature over the bytes at path as they are
// at call time. Requires CertPath and KeyPath.
func (p *CMSProvider) Sign(path string) ([]byte, error) {
	if p.cfg.CertPath == "" || p.cfg.KeyPath == "" {
		return nil, fmt.Errorf("sign %s: %w", path, rerrors.ErrContractViolation)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", path, err)
	}

	cert, key, err := loadSigner(p.cfg.CertPath, p.cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(data)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", path, err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("sign %s: %w", path, err)
	}
	sd.Detach()

	sig, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", path, err)
	}

	p.log.Debug("signed file", "path", path, "signer", cert.Subject.CommonName, "bytes", len(sig))
	return sig, nil
}

// Verify checks a detached signature against the current bytes at path,
// requiring the signer chain to anchor in the configured keyring.
func (p *CMSProvider) Verify(path string, sig []byte) error {
	if p.cfg.KeyringPath == "" {
		return fmt.Errorf("verify %s: %w", path, rerrors.ErrContractViolation)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}

	pool, err := loadKeyring(p.cfg.KeyringPath)
	if err != nil {
		return err
	}

	parsed, err := pkcs7.Parse(sig)
	if err != nil {
		return fmt.Errorf("verify %s: %w: %v", path, rerrors.ErrSignatureInvalid, err)
	}

	// Detached signature: attach the content before verification.
	parsed.Content = data

	if err := parsed.VerifyWithChain(pool); err != nil {
		return fmt.Errorf("verify %s: %w: %v", path, rerrors.ErrSignatureInvalid, err)
	}

	p.log.Debug("signature verified", "path", path)
	return nil
}

// loadSigner reads the signer certificate and private key. The key is tried
// as PKCS#8 first, then PKCS#1 (RSA) and SEC1 (EC) for older material.
func loadSigner(certPath, keyPath string) (*x509.Certificate, crypto.PrivateKey, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading signer cert: %w", err)
	}

	block, _ := pem.Decode(certData)
	if block == nil {
		return nil, nil, fmt.Errorf("signer cert %s: no PEM block", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("signer cert %s: %w", certPath, err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading signer key: %w", err)
	}

	block, _ = pem.Decode(keyData)
	if block == nil {
		return nil, nil, fmt.Errorf("signer key %s: no PEM block", keyPath)
	}

	var key crypto.PrivateKey
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		switch k.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			key = k
		default:
			return nil, nil, fmt.Errorf("signer key %s: unsupported key type %T", keyPath, k)
		}
	} else if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		return nil, nil, fmt.Errorf("signer key %s: unable to parse private key", keyPath)
	}

	return cert, key, nil
}

// loadKeyring builds a cert pool from a PEM bundle of trust anchors.
func loadKeyring(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("keyring %s: no usable certificates", path)
	}
	return pool, nil
}
