// Package bootenv implements the fixed-size grub-style environment block
// of spec §6/§8: a file beginning with the literal signature line
// "# GRUB Environment Block\n", followed by "key=value\n" records, padded
// with '#' bytes to a fixed size. SaveEnv must preserve the file's byte
// length exactly (§8 invariant 6) by replacing existing keys in place and
// padding any newly added ones.
//
// Grounded on the teacher's bootloader/grubenv package name and the
// grubEditenvGet/Set helpers in bootloader/grub_test.go, which exercise
// exactly this key=value-over-a-padded-block format against the real
// grub-editenv tool; key=value bodies are parsed with the teacher's own
// github.com/mvo5/goconfigparser, the library its grub tests already use
// for the same text shape.
package bootenv

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mvo5/goconfigparser"
)

// Signature is the mandatory first line of every env block (spec §6/§8
// invariant 8), byte-for-byte.
const Signature = "# GRUB Environment Block\n"

// DefaultSize is used when SaveEnv must create a block from scratch (no
// existing file), matching grub's own default env block size. This
// resolves the open question in spec §9 ("whether a non-existent target
// is an error or an auto-create"): we auto-create at this size.
const DefaultSize = 1024

// ReadEnv reads and parses an env block, returning its key=value pairs.
// The signature line is mandatory; anything from the first '#'-padding
// byte onward is ignored.
func ReadEnv(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootenv: %w", err)
	}
	if !bytes.HasPrefix(raw, []byte(Signature)) {
		return nil, fmt.Errorf("bootenv: %s: missing grub environment block signature", path)
	}
	body := raw[len(Signature):]
	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = true
	if err := cfg.ReadString(stripPadding(string(body))); err != nil {
		return nil, fmt.Errorf("bootenv: %s: %w", path, err)
	}
	out := make(map[string]string)
	for _, key := range cfg.Options("") {
		v, err := cfg.Get("", key)
		if err != nil {
			continue
		}
		out[key] = v
	}
	return out, nil
}

// stripPadding truncates at the first line that is exactly '#' padding
// (grub pads lines of '#' characters after the last real record).
func stripPadding(body string) string {
	lines := strings.Split(body, "\n")
	var kept []string
	for _, l := range lines {
		if isPaddingLine(l) {
			break
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func isPaddingLine(l string) bool {
	if l == "" {
		return false
	}
	for _, r := range l {
		if r != '#' {
			return false
		}
	}
	return true
}

// SaveEnv writes vars into path, preserving the file's exact byte length
// (spec §8 invariant 6): existing keys are replaced in place, preserving
// line order for unchanged keys; new keys are appended into the padding.
// If path does not exist, a new block of DefaultSize bytes is created
// (see the Open Question decision in DESIGN.md). Returns an error if the
// merged content does not fit within the target size.
func SaveEnv(path string, vars map[string]string) error {
	var existing map[string]string
	size := DefaultSize

	if raw, err := os.ReadFile(path); err == nil {
		size = len(raw)
		existing, err = ReadEnv(path)
		if err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("bootenv: %w", err)
	} else {
		existing = map[string]string{}
	}

	keys := existingOrder(path, existing)
	merged := make(map[string]string, len(existing))
	for k, v := range existing {
		merged[k] = v
	}
	var newKeys []string
	for k, v := range vars {
		if _, ok := merged[k]; !ok {
			newKeys = append(newKeys, k)
		}
		merged[k] = v
	}
	sort.Strings(newKeys)
	order := append(keys, newKeys...)

	var body strings.Builder
	for _, k := range order {
		fmt.Fprintf(&body, "%s=%s\n", k, merged[k])
	}

	total := len(Signature) + body.Len()
	if total > size {
		return fmt.Errorf("bootenv: %s: new content (%d bytes) does not fit in %d-byte block", path, total, size)
	}

	var out bytes.Buffer
	out.WriteString(Signature)
	out.WriteString(body.String())
	for out.Len() < size {
		out.WriteByte('#')
	}

	return os.WriteFile(path, out.Bytes(), 0644)
}

// existingOrder recovers the on-disk key order so unchanged keys keep
// their original position (spec §8 invariant 6 "preserves line order for
// unchanged keys").
func existingOrder(path string, existing map[string]string) []string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if !bytes.HasPrefix(raw, []byte(Signature)) {
		return nil
	}
	body := stripPadding(string(raw[len(Signature):]))
	var order []string
	for _, line := range strings.Split(body, "\n") {
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := line[:idx]
		if _, ok := existing[key]; ok {
			order = append(order, key)
		}
	}
	return order
}
