package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/medude/rauc/pkg/rauc/checksum"
	"github.com/medude/rauc/pkg/rauc/rerrors"
)

const (
	// ManifestFilename is the manifest's fixed name inside a bundle
	// directory.
	ManifestFilename = "manifest.raucm"
	// SignatureFilename is the detached signature stored next to it.
	SignatureFilename = ManifestFilename + ".sig"
)

// SignProvider is the signing engine the bundle workflows call out to.
// Sign returns a detached signature over the bytes at path; Verify checks
// one against the current bytes at path. Implementations classify their
// failures with the rerrors sentinels.
type SignProvider interface {
	Sign(path string) ([]byte, error)
	Verify(path string, sig []byte) error
}

// Processor runs the two bundle-level workflows: authoring (UpdateManifest)
// and consumption (VerifyManifest). It holds no state across calls and no
// locks; concurrent calls must target distinct bundle directories, which is
// the caller's responsibility.
type Processor struct {
	signer SignProvider
	log    hclog.Logger
}

// NewProcessor creates a Processor. signer may be nil for unsigned-only
// use; requesting a signed operation then fails with ErrContractViolation.
func NewProcessor(signer SignProvider, logger hclog.Logger) *Processor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Processor{signer: signer, log: logger}
}

// UpdateManifest is the authoring workflow: load the bundle's manifest,
// recompute every image checksum from the files in dir, rewrite the
// manifest in place, and optionally sign the rewritten file.
//
// The checksum pass fails fast: on the first unreadable image the in-memory
// manifest is left partially updated and never persisted.
func (p *Processor) UpdateManifest(dir string, sign bool) error {
	if sign && p.signer == nil {
		return fmt.Errorf("update bundle %s: %w", dir, rerrors.ErrContractViolation)
	}

	manifestPath := filepath.Join(dir, ManifestFilename)

	m, err := Load(manifestPath)
	if err != nil {
		return fmt.Errorf("update bundle %s: %w", dir, err)
	}

	p.log.Debug("updating image checksums", "bundle", dir, "images", len(m.Images))

	for i := range m.Images {
		img := &m.Images[i]
		if err := checksum.Update(&img.Checksum, filepath.Join(dir, img.Filename)); err != nil {
			return fmt.Errorf("update bundle %s: image %s: %w", dir, img.SlotClass, err)
		}
		p.log.Debug("image checksum updated", "slotclass", img.SlotClass, "digest", img.Checksum.Digest)
	}

	if err := Save(manifestPath, m); err != nil {
		return fmt.Errorf("update bundle %s: %w", dir, err)
	}

	if sign {
		sig, err := p.signer.Sign(manifestPath)
		if err != nil {
			return fmt.Errorf("update bundle %s: %w", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, SignatureFilename), sig, 0644); err != nil {
			return fmt.Errorf("update bundle %s: writing signature: %w", dir, err)
		}
		p.log.Info("bundle manifest signed", "bundle", dir)
	}

	return nil
}

// VerifyManifest is the consumption workflow, mirroring UpdateManifest with
// the trust order inverted: when sign is requested, the detached signature
// must verify against the raw manifest bytes before those bytes are parsed
// at all. Only then is the manifest decoded and each image checksum
// verified in list order, failing fast on the first mismatch.
func (p *Processor) VerifyManifest(dir string, sign bool) error {
	if sign && p.signer == nil {
		return fmt.Errorf("verify bundle %s: %w", dir, rerrors.ErrContractViolation)
	}

	manifestPath := filepath.Join(dir, ManifestFilename)

	if sign {
		sig, err := os.ReadFile(filepath.Join(dir, SignatureFilename))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("verify bundle %s: %w", dir, rerrors.ErrMissingSignature)
			}
			return fmt.Errorf("verify bundle %s: reading signature: %w", dir, err)
		}
		if err := p.signer.Verify(manifestPath, sig); err != nil {
			return fmt.Errorf("verify bundle %s: %w", dir, err)
		}
		p.log.Debug("bundle signature verified", "bundle", dir)
	}

	m, err := Load(manifestPath)
	if err != nil {
		return fmt.Errorf("verify bundle %s: %w", dir, err)
	}

	for i := range m.Images {
		img := &m.Images[i]
		if err := checksum.Verify(&img.Checksum, filepath.Join(dir, img.Filename)); err != nil {
			return fmt.Errorf("verify bundle %s: image %s: %w", dir, img.SlotClass, err)
		}
		p.log.Debug("image checksum verified", "slotclass", img.SlotClass)
	}

	p.log.Info("bundle verified", "bundle", dir, "images", len(m.Images), "signed", sign)
	return nil
}
