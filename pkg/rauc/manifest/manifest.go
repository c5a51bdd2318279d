// Package manifest implements the update bundle manifest: its in-memory
// model, the key-file codec it persists through, and the bundle-level
// update/verify workflows built on top of it.
//
// The persisted format is INI-style text. Section [update] names the
// compatible platform and version, [keyring] and [handler] are optional
// bundle extras, and each [image.<slot-class>] section describes one image
// file addressed to a slot class:
//
//	[update]
//	compatible=my-board
//	version=2026.08
//
//	[image.rootfs]
//	sha256=<hex digest>
//	filename=rootfs.ext4
//
// Sections the codec does not know are ignored on load and lost on save;
// the format is authoritative, not an open extension point.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-ini/ini"

	"github.com/medude/rauc/pkg/rauc/checksum"
	"github.com/medude/rauc/pkg/rauc/rerrors"
)

const imagePrefix = "image"

func init() {
	// Emit key=value without alignment padding, matching the key-file
	// format the device side parses.
	ini.PrettyFormat = false
}

// Image describes one payload file of a bundle, addressed by the slot class
// it installs into. Filename is relative to the bundle directory; resolution
// against a directory happens only in the bundle workflows, never here.
type Image struct {
	SlotClass string
	Checksum  checksum.Checksum
	Filename  string
}

// Manifest is the authoritative metadata of one update bundle.
type Manifest struct {
	UpdateCompatible string // required
	UpdateVersion    string
	Keyring          string
	HandlerName      string
	Images           []Image // insertion order from the source text
}

// CompatibleWith reports whether the bundle targets a system with the given
// compatible string. The broader controller gates installation on this
// against the loaded system config.
func (m *Manifest) CompatibleWith(systemCompatible string) bool {
	return m.UpdateCompatible != "" && m.UpdateCompatible == systemCompatible
}

// Decode parses manifest text. A manifest without an [update] section or
// with an empty compatible value is rejected; so are duplicate occurrences
// of any section the codec consumes, and image sections without a slot
// class. The slot class is everything after the first dot of the section
// name, so classes themselves may contain dots ("rootfs.0").
func Decode(data []byte) (*Manifest, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: true}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rerrors.ErrManifestFormat, err)
	}

	if err := rejectDuplicateSections(f); err != nil {
		return nil, err
	}

	m := &Manifest{}

	update, err := f.GetSection("update")
	if err != nil {
		return nil, fmt.Errorf("%w: missing [update] section", rerrors.ErrManifestFormat)
	}
	m.UpdateCompatible = update.Key("compatible").String()
	if m.UpdateCompatible == "" {
		return nil, fmt.Errorf("%w: [update] section without compatible", rerrors.ErrManifestFormat)
	}
	m.UpdateVersion = update.Key("version").String()

	if sec, err := f.GetSection("keyring"); err == nil {
		m.Keyring = sec.Key("archive").String()
	}
	if sec, err := f.GetSection("handler"); err == nil {
		m.HandlerName = sec.Key("filename").String()
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name != imagePrefix && !strings.HasPrefix(name, imagePrefix+".") {
			continue
		}

		class := strings.TrimPrefix(name, imagePrefix)
		class = strings.TrimPrefix(class, ".")
		if class == "" {
			return nil, fmt.Errorf("%w: image section %q without slot class", rerrors.ErrManifestFormat, name)
		}

		img := Image{SlotClass: class}
		if sec.HasKey("sha256") {
			digest, err := normalizeDigest(sec.Key("sha256").String())
			if err != nil {
				return nil, fmt.Errorf("%w: [%s]: %v", rerrors.ErrManifestFormat, name, err)
			}
			img.Checksum = checksum.Checksum{Type: checksum.SHA256, Digest: digest}
		}
		if sec.HasKey("filename") {
			img.Filename = sec.Key("filename").String()
		}

		m.Images = append(m.Images, img)
	}

	return m, nil
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	return Decode(data)
}

// Encode serializes the manifest deterministically: [update] first, then
// [keyring] and [handler] when set, then one image section per entry in
// list order. Images without a slot class are skipped; they cannot be
// addressed and indicate a caller bug, not user input.
func (m *Manifest) Encode() ([]byte, error) {
	f := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: true})

	update, err := f.NewSection("update")
	if err != nil {
		return nil, err
	}
	if _, err := update.NewKey("compatible", m.UpdateCompatible); err != nil {
		return nil, err
	}
	if m.UpdateVersion != "" {
		if _, err := update.NewKey("version", m.UpdateVersion); err != nil {
			return nil, err
		}
	}

	if m.Keyring != "" {
		sec, err := f.NewSection("keyring")
		if err != nil {
			return nil, err
		}
		if _, err := sec.NewKey("archive", m.Keyring); err != nil {
			return nil, err
		}
	}

	if m.HandlerName != "" {
		sec, err := f.NewSection("handler")
		if err != nil {
			return nil, err
		}
		if _, err := sec.NewKey("filename", m.HandlerName); err != nil {
			return nil, err
		}
	}

	for _, img := range m.Images {
		if img.SlotClass == "" {
			continue
		}
		sec, err := f.NewSection(imagePrefix + "." + img.SlotClass)
		if err != nil {
			return nil, err
		}
		if img.Checksum.Type == checksum.SHA256 {
			if _, err := sec.NewKey("sha256", img.Checksum.Digest); err != nil {
				return nil, err
			}
		}
		if img.Filename != "" {
			if _, err := sec.NewKey("filename", img.Filename); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save encodes the manifest and writes it to path, replacing any existing
// file.
func Save(path string, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// rejectDuplicateSections fails when a section the codec consumes appears
// more than once. Accepting duplicates would make the surviving value
// depend on parser internals, which a trust anchor must not do. Unknown
// sections stay exempt; they are ignored wholesale anyway.
func rejectDuplicateSections(f *ini.File) error {
	counts := make(map[string]int)
	for _, sec := range f.Sections() {
		counts[sec.Name()]++
	}

	for name, n := range counts {
		if n < 2 {
			continue
		}
		known := name == "update" || name == "keyring" || name == "handler" ||
			name == imagePrefix || strings.HasPrefix(name, imagePrefix+".")
		if known {
			return fmt.Errorf("%w: duplicate section [%s]", rerrors.ErrManifestFormat, name)
		}
	}
	return nil
}

// normalizeDigest validates a stored SHA-256 digest and lowercases it.
func normalizeDigest(s string) (string, error) {
	s = strings.ToLower(s)
	if len(s) != 64 {
		return "", fmt.Errorf("sha256 digest has length %d, want 64", len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("sha256 digest contains non-hex character %q", c)
		}
	}
	return s, nil
}
