// Command keyboard is a mudra plugin that presses the key combination mapped
// to an intent. It reads one plugin.Request on stdin and writes one
// plugin.Response on stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/plugin"
)

type bindingConfig struct {
	Combo string `json:"combo"`
}

type result struct {
	KeyCombo string `json:"key_combo"`
	Executed bool   `json:"executed"`
}

func main() {
	resp := handle(os.Stdin, runCombo)
	json.NewEncoder(os.Stdout).Encode(resp)
}

// handle decodes a request and presses its combo with press unless the
// request is a dry run.
func handle(r io.Reader, press func(osName, combo string) error) plugin.Response {
	var req plugin.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return failure(fmt.Errorf("decode request: %w", err))
	}

	in, err := intent.Parse(req.Action)
	if err != nil || !in.Actionable() {
		return failure(fmt.Errorf("unknown action: %s", req.Action))
	}

	osName, err := osKey()
	if err != nil {
		return failure(err)
	}

	var cfg bindingConfig
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return failure(fmt.Errorf("parse config: %w", err))
		}
	}
	combo := cfg.Combo
	if combo == "" {
		if combo, err = comboFor(actionsPath(), osName, in); err != nil {
			return failure(err)
		}
	}

	if !req.DryRun {
		if err := press(osName, combo); err != nil {
			return failure(fmt.Errorf("press %s: %w", combo, err))
		}
	}
	data, _ := json.Marshal(result{KeyCombo: combo, Executed: !req.DryRun})
	return plugin.Response{Success: true, Data: data}
}

func runCombo(osName, combo string) error {
	var cmd *exec.Cmd
	if osName == "macos" {
		script, err := appleScript(combo)
		if err != nil {
			return err
		}
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("xdotool", "key", combo)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

func failure(err error) plugin.Response {
	return plugin.Response{Success: false, Error: err.Error()}
}
