// Package config models the device-side system configuration: the
// compatible string the controller matches bundles against, the bootloader
// backend, the verification keyring, and the named installation slots.
//
// The file shares the manifest's key-file encoding:
//
//	[system]
//	compatible=my-board
//	bootloader=barebox
//
//	[keyring]
//	path=/etc/rauc/keyring.pem
//
//	[slot.rootfs.0]
//	device=/dev/sda1
//	type=ext4
//	bootname=system0
//
// A slot may name another slot as parent, grouping e.g. an appfs under the
// rootfs it belongs to. Parents form a forest; cycles are rejected at load
// time. The loaded Config is read-only for the life of the process.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ini/ini"

	"github.com/medude/rauc/pkg/rauc/rerrors"
)

const slotPrefix = "slot"

func init() {
	// Same key=value form as the manifest codec.
	ini.PrettyFormat = false
}

// Slot is one named installation target on the device.
type Slot struct {
	Name     string
	Device   string
	Type     string
	Bootname string
	Readonly bool
	Parent   *Slot
}

// Config is the system configuration, loaded once at controller startup.
type Config struct {
	SystemCompatible string
	SystemBootloader string
	KeyringPath      string
	Slots            map[string]*Slot
}

// Decode parses system configuration text. A missing [system] section or an
// empty compatible value is rejected, as are duplicate sections, slot
// sections without a name, parent references to unknown slots, and parent
// cycles.
func Decode(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: true}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rerrors.ErrConfigFormat, err)
	}

	if err := rejectDuplicateSections(f); err != nil {
		return nil, err
	}

	c := &Config{Slots: make(map[string]*Slot)}

	system, err := f.GetSection("system")
	if err != nil {
		return nil, fmt.Errorf("%w: missing [system] section", rerrors.ErrConfigFormat)
	}
	c.SystemCompatible = system.Key("compatible").String()
	if c.SystemCompatible == "" {
		return nil, fmt.Errorf("%w: [system] section without compatible", rerrors.ErrConfigFormat)
	}
	c.SystemBootloader = system.Key("bootloader").String()

	if sec, err := f.GetSection("keyring"); err == nil {
		c.KeyringPath = sec.Key("path").String()
	}

	// First pass: collect slots and remember parent names, second pass:
	// resolve references once every slot exists.
	parents := make(map[string]string)

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name != slotPrefix && !strings.HasPrefix(name, slotPrefix+".") {
			continue
		}

		slotName := strings.TrimPrefix(name, slotPrefix)
		slotName = strings.TrimPrefix(slotName, ".")
		if slotName == "" {
			return nil, fmt.Errorf("%w: slot section %q without name", rerrors.ErrConfigFormat, name)
		}

		slot := &Slot{
			Name:     slotName,
			Device:   sec.Key("device").String(),
			Type:     sec.Key("type").String(),
			Bootname: sec.Key("bootname").String(),
			Readonly: sec.Key("readonly").MustBool(false),
		}
		c.Slots[slotName] = slot

		if sec.HasKey("parent") {
			parents[slotName] = sec.Key("parent").String()
		}
	}

	for slotName, parentName := range parents {
		parent, ok := c.Slots[parentName]
		if !ok {
			return nil, fmt.Errorf("%w: slot %s references unknown parent %s", rerrors.ErrConfigFormat, slotName, parentName)
		}
		c.Slots[slotName].Parent = parent
	}

	if err := checkParentForest(c.Slots); err != nil {
		return nil, err
	}

	return c, nil
}

// Load reads and decodes a system configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return Decode(data)
}

// checkParentForest rejects cycles through parent links. Walking more steps
// than there are slots proves a cycle without extra bookkeeping.
func checkParentForest(slots map[string]*Slot) error {
	for _, slot := range slots {
		steps := 0
		for s := slot.Parent; s != nil; s = s.Parent {
			steps++
			if steps > len(slots) {
				return fmt.Errorf("%w: slot %s has a parent cycle", rerrors.ErrConfigFormat, slot.Name)
			}
		}
	}
	return nil
}

func rejectDuplicateSections(f *ini.File) error {
	counts := make(map[string]int)
	for _, sec := range f.Sections() {
		counts[sec.Name()]++
	}

	for name, n := range counts {
		if n < 2 {
			continue
		}
		known := name == "system" || name == "keyring" ||
			name == slotPrefix || strings.HasPrefix(name, slotPrefix+".")
		if known {
			return fmt.Errorf("%w: duplicate section [%s]", rerrors.ErrConfigFormat, name)
		}
	}
	return nil
}
