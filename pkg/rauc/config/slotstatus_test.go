package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/medude/rauc/pkg/rauc/checksum"
	"github.com/medude/rauc/pkg/rauc/rerrors"
)

func TestSlotStatusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.raucs")

	orig := &SlotStatus{
		Status: "ok",
		Checksum: checksum.Checksum{
			Type:   checksum.SHA256,
			Digest: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}
	if err := SaveSlotStatus(path, orig); err != nil {
		t.Fatalf("SaveSlotStatus() error = %v", err)
	}

	got, err := LoadSlotStatus(path)
	if err != nil {
		t.Fatalf("LoadSlotStatus() error = %v", err)
	}
	if !reflect.DeepEqual(got, orig) {
		t.Errorf("round-trip mismatch:\ngot  %+v\nwant %+v", got, orig)
	}
}

func TestSlotStatusWithoutChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.raucs")

	if err := SaveSlotStatus(path, &SlotStatus{Status: "pending"}); err != nil {
		t.Fatalf("SaveSlotStatus() error = %v", err)
	}
	got, err := LoadSlotStatus(path)
	if err != nil {
		t.Fatalf("LoadSlotStatus() error = %v", err)
	}
	if got.Status != "pending" || got.Checksum.Type != checksum.None {
		t.Errorf("got %+v", got)
	}
}

func TestLoadSlotStatusRejects(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "empty.raucs")
	if err := os.WriteFile(path, []byte("[other]\nkey=value\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSlotStatus(path); !errors.Is(err, rerrors.ErrStatusFormat) {
		t.Errorf("LoadSlotStatus() error = %v, want ErrStatusFormat", err)
	}

	if _, err := LoadSlotStatus(filepath.Join(dir, "missing.raucs")); err == nil {
		t.Error("LoadSlotStatus() on missing file succeeded")
	}
}
