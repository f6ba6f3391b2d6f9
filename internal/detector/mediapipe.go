package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/mudra/pkg/logger"
	"gocv.io/x/gocv"
)

const (
	serviceScript = "scripts/mediapipe_service.py"
	venvPython    = "venv/bin/python"

	// stopGrace is how long the service may take to exit after stdin closes.
	stopGrace = 2 * time.Second
)

// MediaPipeDetector runs the hand landmarker in a Python subprocess. Frames
// go over stdin as a 4-byte big-endian length followed by JPEG bytes; each
// frame is answered with one JSON line on stdout.
//
// The subprocess starts on the first frame, stops after IdleTimeout without
// frames, and is torn down after any I/O error so the next frame restarts it.
type MediaPipeDetector struct {
	config Config
	python string
	log    logger.Logger

	mu      sync.Mutex
	proc    *service
	idle    *time.Timer
	dropped int
}

type service struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewMediaPipeDetector locates the service script and interpreter. It
// does not start the subprocess.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if config.ScriptPath == "" {
		config.ScriptPath = locate(serviceScript)
	}
	if config.ScriptPath == "" {
		return nil, fmt.Errorf("%s not found", filepath.Base(serviceScript))
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	python := config.PythonPath
	if python == "" {
		python = locate(venvPython)
	}
	if python == "" {
		python = "python3"
	}
	return &MediaPipeDetector{
		config: config,
		python: python,
		log:    logger.Named("detector"),
	}, nil
}

func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return d.DetectJPEG(buf.GetBytes())
}

func (d *MediaPipeDetector) DetectJPEG(data []byte) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.proc == nil {
		proc, err := d.start()
		if err != nil {
			return nil, err
		}
		d.proc = proc
	}

	line, err := d.proc.roundTrip(data)
	if err != nil {
		d.log.Warn(context.Background(), "mediapipe service failed, restarting on next frame", logger.Error(err))
		d.stop()
		return nil, err
	}
	d.touch()
	return d.parse(line)
}

func (s *service) roundTrip(data []byte) ([]byte, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := s.stdin.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write frame header: %w", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	line, err := s.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

type serviceResponse struct {
	Hands []struct {
		Points     []Point3D `json:"points"`
		Handedness string    `json:"handedness"`
		Score      float64   `json:"score"`
	} `json:"hands"`
	Error string `json:"error"`
}

// parse decodes one response line. Hands with a wrong keypoint count or
// that fail Validate are dropped; the rest go through Config.filter.
func (d *MediaPipeDetector) parse(line []byte) ([]HandLandmarks, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("mediapipe: %s", resp.Error)
	}

	hands := make([]HandLandmarks, 0, len(resp.Hands))
	for _, raw := range resp.Hands {
		if len(raw.Points) != NumLandmarks {
			d.drop(fmt.Errorf("got %d keypoints", len(raw.Points)))
			continue
		}
		h := HandLandmarks{Handedness: canonicalHandedness(raw.Handedness), Score: raw.Score}
		copy(h.Points[:], raw.Points)
		if err := h.Validate(); err != nil {
			d.drop(err)
			continue
		}
		hands = append(hands, h)
	}
	return d.config.filter(hands), nil
}

func (d *MediaPipeDetector) drop(reason error) {
	d.dropped++
	d.log.Debug(context.Background(), "dropping hand", logger.Error(reason), logger.Int("dropped_total", d.dropped))
}

func (d *MediaPipeDetector) start() (*service, error) {
	cmd := exec.Command(d.python, d.config.ScriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mediapipe service: %w", err)
	}
	d.log.Info(context.Background(), "mediapipe service started",
		logger.String("python", d.python), logger.String("script", d.config.ScriptPath),
		logger.Int("pid", cmd.Process.Pid))
	return &service{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

// touch re-arms the idle timer. Callers hold d.mu.
func (d *MediaPipeDetector) touch() {
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idle = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.proc != nil {
			d.log.Debug(context.Background(), "mediapipe service idle, stopping")
			d.stop()
		}
	})
}

// stop closes stdin and waits up to stopGrace before killing the process.
// Callers hold d.mu.
func (d *MediaPipeDetector) stop() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	proc := d.proc
	if proc == nil {
		return nil
	}
	d.proc = nil

	proc.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- proc.cmd.Wait() }()
	select {
	case err := <-done:
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return nil
		}
		return err
	case <-time.After(stopGrace):
		d.log.Warn(context.Background(), "mediapipe service did not exit, killing")
		proc.cmd.Process.Kill()
		return <-done
	}
}

// Close stops the subprocess if it is running.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

// locate resolves rel against the working directory, its parents, the
// executable's directory and ~/.mudra, returning the first existing path.
func locate(rel string) string {
	candidates := []string{rel, filepath.Join("..", rel), filepath.Join("..", "..", rel)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".mudra", rel))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
