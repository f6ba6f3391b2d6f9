package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ayusman/mudra/internal/intent"
)

// defaultActions is used when no actions.yaml is found next to the binary.
var defaultActions = map[string]map[intent.Intent]string{
	"linux": {
		intent.OpenMenu:    "super",
		intent.CloseMenu:   "Escape",
		intent.SwitchRight: "ctrl+alt+Right",
		intent.SwitchLeft:  "ctrl+alt+Left",
	},
	"macos": {
		intent.OpenMenu:    "ctrl+up",
		intent.CloseMenu:   "escape",
		intent.SwitchRight: "ctrl+right",
		intent.SwitchLeft:  "ctrl+left",
	},
}

var errUnsupportedOS = errors.New("unsupported operating system")

func osKey() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "linux", nil
	case "darwin":
		return "macos", nil
	}
	return "", fmt.Errorf("%w: %s", errUnsupportedOS, runtime.GOOS)
}

// actionsPath is actions.yaml beside the executable, overridable with
// MUDRA_KEYBOARD_ACTIONS.
func actionsPath() string {
	if p := os.Getenv("MUDRA_KEYBOARD_ACTIONS"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "actions.yaml")
}

// comboFor resolves the key combination for in on the given OS.
func comboFor(path, osName string, in intent.Intent) (string, error) {
	combo := defaultActions[osName][in]
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			k := koanf.New(".")
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return "", fmt.Errorf("load %s: %w", path, err)
			}
			if v := k.String(osName + "." + string(in)); v != "" {
				combo = v
			}
		}
	}
	if combo == "" {
		return "", fmt.Errorf("no key mapping for %s on %s", in, osName)
	}
	return combo, nil
}

var macModifiers = map[string]string{
	"ctrl":    "control down",
	"control": "control down",
	"cmd":     "command down",
	"command": "command down",
	"shift":   "shift down",
	"alt":     "option down",
	"option":  "option down",
}

var macKeyCodes = map[string]int{
	"right":  124,
	"left":   123,
	"up":     126,
	"down":   125,
	"escape": 53,
	"esc":    53,
	"space":  49,
	"return": 36,
	"enter":  36,
}

// appleScript builds a System Events script for a combo like "ctrl+right".
func appleScript(combo string) (string, error) {
	var parts []string
	for _, p := range strings.Split(combo, "+") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("invalid key combo %q", combo)
	}

	key := parts[len(parts)-1]
	var mods []string
	for _, m := range parts[:len(parts)-1] {
		mod, ok := macModifiers[m]
		if !ok {
			return "", fmt.Errorf("unsupported modifier %q in %q", m, combo)
		}
		mods = append(mods, mod)
	}
	using := ""
	if len(mods) > 0 {
		using = " using {" + strings.Join(mods, ", ") + "}"
	}

	if code, ok := macKeyCodes[key]; ok {
		return fmt.Sprintf("tell application \"System Events\"\n  key code %d%s\nend tell", code, using), nil
	}
	if len([]rune(key)) == 1 {
		return fmt.Sprintf("tell application \"System Events\"\n  keystroke %q%s\nend tell", key, using), nil
	}
	return "", fmt.Errorf("unsupported key %q in %q", key, combo)
}
