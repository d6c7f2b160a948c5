//go:build darwin

package hotkey

import "golang.design/x/hotkey"

var modifierNames = map[string]hotkey.Modifier{
	"ctrl":   hotkey.ModCtrl,
	"shift":  hotkey.ModShift,
	"option": hotkey.ModOption,
	"alt":    hotkey.ModOption,
	"cmd":    hotkey.ModCmd,
}

var modifierOrder = []string{"ctrl", "option", "alt", "shift", "cmd"}
