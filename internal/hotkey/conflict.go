package hotkey

import "golang.design/x/hotkey"

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string
	Description string
	Label       string
}

// knownConflicts lists shortcuts commonly taken by the system or by games
// Entries whose modifiers do not exist on this platform never match
var knownConflicts = []ConflictInfo{
	{Name: "Spotlight", Description: "macOS Spotlight search", Label: "cmd+space"},
	{Name: "Force Quit", Description: "macOS Force Quit", Label: "cmd+option+ESC"},
	{Name: "Close Window", Description: "Windows close window", Label: "alt+F4"},
	{Name: "Lock Screen", Description: "Windows lock screen", Label: "win+L"},
	{Name: "Task Manager", Description: "Windows Task Manager", Label: "ctrl+shift+ESC"},
	{Name: "Game Bar", Description: "Xbox Game Bar", Label: "win+G"},
	{Name: "Screenshot", Description: "Steam screenshot (common default)", Label: "F12"},
}

// CheckConflicts checks if the given binding conflicts with known shortcuts
func CheckConflicts(b Binding) []ConflictInfo {
	var conflicts []ConflictInfo

	for _, known := range knownConflicts {
		kb, err := ParseLabel(known.Label)
		if err != nil {
			continue
		}
		if hotkeyMatches(b.Modifiers, b.Key, kb.Modifiers, kb.Key) {
			conflicts = append(conflicts, known)
		}
	}

	return conflicts
}

// hotkeyMatches checks if two hotkey combinations are identical
func hotkeyMatches(mods1 []hotkey.Modifier, key1 hotkey.Key, mods2 []hotkey.Modifier, key2 hotkey.Key) bool {
	if key1 != key2 {
		return false
	}

	// Create maps for comparison
	modMap1 := make(map[hotkey.Modifier]bool)
	modMap2 := make(map[hotkey.Modifier]bool)

	for _, mod := range mods1 {
		modMap1[mod] = true
	}

	for _, mod := range mods2 {
		modMap2[mod] = true
	}

	if len(modMap1) != len(modMap2) {
		return false
	}

	// Check if all modifiers match
	for mod := range modMap1 {
		if !modMap2[mod] {
			return false
		}
	}

	return true
}
