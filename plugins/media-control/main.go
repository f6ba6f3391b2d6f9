// Command media-control is a mudra plugin for playback and volume keys.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/ayusman/mudra/internal/plugin"
)

type mediaConfig struct {
	// Player narrows playerctl to one player, e.g. "spotify".
	Player string `json:"player"`
	// Step is the volume change in percent.
	Step int `json:"step"`
}

const defaultStep = 5

// command returns the argv for action on goos.
type command func(goos string, cfg mediaConfig) ([]string, error)

var actions = map[string]command{
	"play-pause":  playerctl("play-pause", "playpause"),
	"next":        playerctl("next", "next track"),
	"previous":    playerctl("previous", "previous track"),
	"volume-up":   volume(+1),
	"volume-down": volume(-1),
	"mute":        mute,
}

func playerctl(verb, musicVerb string) command {
	return func(goos string, cfg mediaConfig) ([]string, error) {
		switch goos {
		case "linux":
			if cfg.Player != "" {
				return []string{"playerctl", "-p", cfg.Player, verb}, nil
			}
			return []string{"playerctl", verb}, nil
		case "darwin":
			app := "Music"
			if cfg.Player != "" {
				app = cfg.Player
			}
			return []string{"osascript", "-e", fmt.Sprintf("tell application %q to %s", app, musicVerb)}, nil
		}
		return nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func volume(sign int) command {
	return func(goos string, cfg mediaConfig) ([]string, error) {
		step := cfg.Step
		if step <= 0 {
			step = defaultStep
		}
		switch goos {
		case "linux":
			delta := "+" + strconv.Itoa(step) + "%"
			if sign < 0 {
				delta = "-" + strconv.Itoa(step) + "%"
			}
			return []string{"pactl", "set-sink-volume", "@DEFAULT_SINK@", delta}, nil
		case "darwin":
			script := fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) + %d)", sign*step)
			return []string{"osascript", "-e", script}, nil
		}
		return nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func mute(goos string, _ mediaConfig) ([]string, error) {
	switch goos {
	case "linux":
		return []string{"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"}, nil
	case "darwin":
		return []string{"osascript", "-e", "set volume output muted (not (output muted of (get volume settings)))"}, nil
	}
	return nil, fmt.Errorf("unsupported operating system: %s", goos)
}

func main() {
	resp := handle(os.Stdin, runtime.GOOS, func(argv []string) error {
		if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%w: %s", err, out)
		}
		return nil
	})
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader, goos string, run func(argv []string) error) plugin.Response {
	var req plugin.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return failure(fmt.Errorf("decode request: %w", err))
	}

	build, ok := actions[req.Action]
	if !ok {
		return failure(fmt.Errorf("unknown action: %s", req.Action))
	}

	var cfg mediaConfig
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return failure(fmt.Errorf("parse config: %w", err))
		}
	}

	argv, err := build(goos, cfg)
	if err != nil {
		return failure(err)
	}
	if !req.DryRun {
		if err := run(argv); err != nil {
			return failure(fmt.Errorf("action %s failed: %w", req.Action, err))
		}
	}
	data, _ := json.Marshal(map[string]any{"command": argv, "executed": !req.DryRun})
	return plugin.Response{Success: true, Data: data}
}

func failure(err error) plugin.Response {
	return plugin.Response{Success: false, Error: err.Error()}
}
