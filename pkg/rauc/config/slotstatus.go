package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-ini/ini"

	"github.com/medude/rauc/pkg/rauc/checksum"
	"github.com/medude/rauc/pkg/rauc/rerrors"
)

// SlotStatus records what was last installed into a slot. It is written
// after a successful slot installation and read back on the next update to
// decide whether a slot already carries the wanted image.
type SlotStatus struct {
	Status   string
	Checksum checksum.Checksum
}

// LoadSlotStatus reads a per-slot status file: a single [slot] section with
// status and sha256 keys.
func LoadSlotStatus(path string) (*SlotStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading slot status: %w", err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rerrors.ErrStatusFormat, err)
	}

	sec, err := f.GetSection("slot")
	if err != nil {
		return nil, fmt.Errorf("%w: missing [slot] section", rerrors.ErrStatusFormat)
	}

	st := &SlotStatus{Status: sec.Key("status").String()}
	if sec.HasKey("sha256") {
		st.Checksum = checksum.Checksum{
			Type:   checksum.SHA256,
			Digest: sec.Key("sha256").String(),
		}
	}
	return st, nil
}

// SaveSlotStatus writes a per-slot status file, replacing any existing one.
func SaveSlotStatus(path string, st *SlotStatus) error {
	f := ini.Empty()

	sec, err := f.NewSection("slot")
	if err != nil {
		return fmt.Errorf("saving slot status: %w", err)
	}
	if st.Status != "" {
		if _, err := sec.NewKey("status", st.Status); err != nil {
			return fmt.Errorf("saving slot status: %w", err)
		}
	}
	if st.Checksum.Type == checksum.SHA256 {
		if _, err := sec.NewKey("sha256", st.Checksum.Digest); err != nil {
			return fmt.Errorf("saving slot status: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("saving slot status: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("saving slot status: %w", err)
	}
	return nil
}
