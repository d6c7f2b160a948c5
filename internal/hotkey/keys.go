package hotkey

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.design/x/hotkey"
)

// ErrInvalidHotkey is returned for labels that do not name a supported key
var ErrInvalidHotkey = errors.New("invalid hotkey")

// keyNames maps upper-cased key labels to key codes. Only keys present in
// golang.design/x/hotkey on every platform are listed
var keyNames = map[string]hotkey.Key{
	"SPACE":  hotkey.KeySpace,
	"ESC":    hotkey.KeyEscape,
	"ESCAPE": hotkey.KeyEscape,
	"RETURN": hotkey.KeyReturn,
	"ENTER":  hotkey.KeyReturn,
	"TAB":    hotkey.KeyTab,
	"DELETE": hotkey.KeyDelete,
	"LEFT":   hotkey.KeyLeft,
	"RIGHT":  hotkey.KeyRight,
	"UP":     hotkey.KeyUp,
	"DOWN":   hotkey.KeyDown,

	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3, "F4": hotkey.KeyF4,
	"F5": hotkey.KeyF5, "F6": hotkey.KeyF6, "F7": hotkey.KeyF7, "F8": hotkey.KeyF8,
	"F9": hotkey.KeyF9, "F10": hotkey.KeyF10, "F11": hotkey.KeyF11, "F12": hotkey.KeyF12,

	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD,
	"E": hotkey.KeyE, "F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH,
	"I": hotkey.KeyI, "J": hotkey.KeyJ, "K": hotkey.KeyK, "L": hotkey.KeyL,
	"M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO, "P": hotkey.KeyP,
	"Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX,
	"Y": hotkey.KeyY, "Z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
}

// Binding is a parsed hotkey label
type Binding struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key

	modNames []string
	keyName  string
}

// ParseLabel parses labels such as "F11", "ctrl+shift+F" or "alt+1"
// Modifier names depend on the platform (see modifierNames)
func ParseLabel(label string) (Binding, error) {
	parts := strings.Split(strings.TrimSpace(label), "+")
	if len(parts) == 0 || strings.TrimSpace(parts[len(parts)-1]) == "" {
		return Binding{}, fmt.Errorf("%w: %q", ErrInvalidHotkey, label)
	}

	keyName := strings.ToUpper(strings.TrimSpace(parts[len(parts)-1]))
	key, ok := keyNames[keyName]
	if !ok {
		return Binding{}, fmt.Errorf("%w: unknown key %q", ErrInvalidHotkey, keyName)
	}

	b := Binding{Key: key, keyName: keyName}
	seen := make(map[string]bool)
	for _, part := range parts[:len(parts)-1] {
		name := strings.ToLower(strings.TrimSpace(part))
		mod, ok := modifierNames[name]
		if !ok {
			return Binding{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidHotkey, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		b.Modifiers = append(b.Modifiers, mod)
		b.modNames = append(b.modNames, name)
	}
	return b, nil
}

// String returns the canonical label: lower-case modifiers in a stable
// order, then the upper-case key
func (b Binding) String() string {
	mods := append([]string(nil), b.modNames...)
	sort.Slice(mods, func(i, j int) bool {
		return modifierRank(mods[i]) < modifierRank(mods[j])
	})
	return strings.Join(append(mods, b.keyName), "+")
}

func modifierRank(name string) int {
	for i, m := range modifierOrder {
		if m == name {
			return i
		}
	}
	return len(modifierOrder)
}

// ValidateLabel reports whether label parses on this platform
func ValidateLabel(label string) error {
	_, err := ParseLabel(label)
	return err
}
