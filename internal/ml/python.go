package ml

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrPredictTimeout = errors.New("prediction timed out")
	ErrWorkerExited   = errors.New("model worker exited")
)

const maxStderrBytes = 8 << 10

// PythonModel serves predictions from a joblib artifact through a long-lived
// Python worker. The worker reads one JSON request per line on stdin and
// answers with one JSON line on stdout. Calls are serialised over the pipe;
// a worker that times out or breaks the protocol is killed and started again
// on the next call. A caller whose context ends first does not cost the
// worker: its late reply is read and dropped before the next request.
type PythonModel struct {
	modelPath  string
	pythonPath string
	pythonArgs []string
	scriptPath string
	ownScript  bool
	timeout    time.Duration
	metrics    MetricsInterface

	mu        sync.Mutex
	w         *worker
	nFeatures int
	classes   []int
	closed    bool
}

type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *limitedBuffer

	// pending holds the reply of a request whose caller gave up.
	pending chan lineResult
}

type workerReady struct {
	Ready     bool   `json:"ready"`
	NFeatures int    `json:"n_features"`
	Classes   []int  `json:"classes"`
	Error     string `json:"error,omitempty"`
}

type workerRequest struct {
	Rows [][]float64 `json:"rows"`
}

type workerResponse struct {
	Labels []int  `json:"labels"`
	Error  string `json:"error,omitempty"`
}

// NewPythonModel finds a Python interpreter, starts the worker and waits for
// it to report the loaded model.
func NewPythonModel(modelPath string, opts Options) (*PythonModel, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	pythonPath := opts.PythonPath
	if pythonPath == "" {
		var err error
		pythonPath, err = findPython()
		if err != nil {
			return nil, err
		}
	}

	p := &PythonModel{
		modelPath:  modelPath,
		pythonPath: pythonPath,
		pythonArgs: opts.PythonArgs,
		scriptPath: opts.ScriptPath,
		timeout:    timeout,
		metrics:    opts.Metrics,
	}

	if p.scriptPath == "" {
		path, err := writeInferenceScript()
		if err != nil {
			return nil, fmt.Errorf("create inference script: %w", err)
		}
		p.scriptPath = path
		p.ownScript = true
	}

	p.mu.Lock()
	err := p.startLocked()
	p.mu.Unlock()
	if err != nil {
		p.removeScript()
		return nil, err
	}

	log.Info().
		Str("model_path", modelPath).
		Str("python_path", pythonPath).
		Int("n_features", p.nFeatures).
		Ints("classes", p.classes).
		Msg("Python model worker ready")

	return p, nil
}

func (p *PythonModel) startLocked() error {
	args := append(append([]string{}, p.pythonArgs...), p.scriptPath, p.modelPath)
	cmd := exec.Command(p.pythonPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	stderr := &limitedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if p.metrics != nil {
		p.metrics.MLWorkerStartInc()
	}

	w := &worker{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout), stderr: stderr}

	line, err := w.readLine(context.Background(), p.timeout)
	if err != nil {
		w.kill()
		return fmt.Errorf("worker did not become ready: %w, stderr: %s", err, stderr.String())
	}

	var ready workerReady
	if err := json.Unmarshal(line, &ready); err != nil {
		w.kill()
		return fmt.Errorf("parse worker ready line: %w, stdout: %s", err, strings.TrimSpace(string(line)))
	}
	if ready.Error != "" || !ready.Ready {
		w.kill()
		return fmt.Errorf("worker failed to load model: %s", ready.Error)
	}

	p.w = w
	p.nFeatures = ready.NFeatures
	p.classes = ready.Classes
	return nil
}

// Predict sends the rows to the worker and waits for one label per row.
func (p *PythonModel) Predict(ctx context.Context, rows [][]float64) ([]int, error) {
	req, err := json.Marshal(workerRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req = append(req, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("model is closed")
	}
	if p.w != nil && p.w.pending != nil {
		if err := p.w.drain(p.timeout); err != nil {
			log.Warn().
				Err(err).
				Str("model_path", p.modelPath).
				Msg("Abandoned request never answered, dropping Python model worker")
			p.discardLocked()
		}
	}
	if p.w == nil {
		log.Warn().Str("model_path", p.modelPath).Msg("Restarting Python model worker")
		if err := p.startLocked(); err != nil {
			return nil, err
		}
	}

	if _, err := p.w.stdin.Write(req); err != nil {
		p.discardLocked()
		return nil, fmt.Errorf("write to worker: %w", err)
	}

	line, err := p.w.readLine(ctx, p.timeout)
	if err != nil && p.w.pending != nil {
		log.Warn().
			Err(err).
			Str("model_path", p.modelPath).
			Msg("Prediction abandoned by caller")
		return nil, err
	}
	if err != nil {
		stderr := p.w.stderr.String()
		p.discardLocked()
		if errors.Is(err, ErrPredictTimeout) && p.metrics != nil {
			p.metrics.MLTimeoutsInc()
		}
		log.Error().
			Err(err).
			Str("python_path", p.pythonPath).
			Str("script_path", p.scriptPath).
			Str("model_path", p.modelPath).
			Str("stderr", stderr).
			Dur("timeout", p.timeout).
			Msg("Python inference failed")
		return nil, err
	}

	var resp workerResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		p.discardLocked()
		return nil, fmt.Errorf("failed to parse response: %w, stdout: %s", err, strings.TrimSpace(string(line)))
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python inference error: %s", resp.Error)
	}
	if len(resp.Labels) != len(rows) {
		return nil, fmt.Errorf("expected %d labels, got %d", len(rows), len(resp.Labels))
	}

	return resp.Labels, nil
}

func (p *PythonModel) NumFeatures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nFeatures
}

// Classes returns the class labels reported by the worker.
func (p *PythonModel) Classes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.classes...)
}

// Close stops the worker. Further Predict calls fail.
func (p *PythonModel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.w != nil {
		p.w.stdin.Close()
		p.w.kill()
		p.w = nil
	}
	p.removeScript()
	return nil
}

func (p *PythonModel) discardLocked() {
	if p.w != nil {
		p.w.kill()
		p.w = nil
	}
}

func (p *PythonModel) removeScript() {
	if p.ownScript {
		os.Remove(p.scriptPath)
	}
}

type lineResult struct {
	line []byte
	err  error
}

// readLine waits for one line from the worker, bounded by timeout and ctx.
// On timeout the caller must kill the worker, which unblocks the read. On
// cancellation the read is left in w.pending for drain.
func (w *worker) readLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := w.stdout.ReadBytes('\n')
		ch <- lineResult{line, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.unwrap()
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrPredictTimeout, timeout)
	case <-ctx.Done():
		w.pending = ch
		return nil, ctx.Err()
	}
}

// drain waits up to timeout for the reply left behind by a cancelled call.
func (w *worker) drain(timeout time.Duration) error {
	ch := w.pending
	w.pending = nil

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		_, err := res.unwrap()
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrPredictTimeout, timeout)
	}
}

func (r lineResult) unwrap() ([]byte, error) {
	if r.err != nil {
		if errors.Is(r.err, io.EOF) {
			return nil, ErrWorkerExited
		}
		return nil, fmt.Errorf("read from worker: %w", r.err)
	}
	return r.line, nil
}

func (w *worker) kill() {
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	go w.cmd.Wait()
}

// limitedBuffer keeps the first limit bytes written to it; the worker's stderr
// is only used for diagnostics.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func findPython() (string, error) {
	probe := "import sys, joblib; print('Python', sys.version)"

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		}
		for _, venvPython := range candidates {
			if hasJoblib(venvPython, probe) {
				log.Info().Str("python_path", venvPython).Msg("Using virtual environment Python")
				return venvPython, nil
			}
		}
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir)} {
			candidates := []string{
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
				filepath.Join(root, "venv", "Scripts", "python.exe"),
			}
			for _, venvPython := range candidates {
				if hasJoblib(venvPython, probe) {
					log.Info().Str("python_path", venvPython).Msg("Using project virtual environment Python")
					return venvPython, nil
				}
			}
		}
	}

	for _, candidate := range []string{"python3", "python", "python3.12", "python3.11", "python3.10"} {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		if hasJoblib(path, probe) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no Python 3 interpreter with joblib found; set PYTHON_PATH")
}

func hasJoblib(python, probe string) bool {
	if _, err := os.Stat(python); err != nil && filepath.IsAbs(python) {
		return false
	}
	out, err := exec.Command(python, "-c", probe).Output()
	return err == nil && strings.Contains(string(out), "Python 3")
}

func writeInferenceScript() (string, error) {
	f, err := os.CreateTemp("", "fraud_inference_*.py")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(inferenceScript); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

const inferenceScript = `#!/usr/bin/env python3
"""Model worker for the fraud detector: one JSON request per line on stdin."""
import json
import sys


def emit(obj):
    sys.stdout.write(json.dumps(obj) + "\n")
    sys.stdout.flush()


def main():
    if len(sys.argv) != 2:
        emit({"error": "usage: inference.py <model_path>"})
        sys.exit(1)

    try:
        import joblib
        import numpy as np
    except ImportError as e:
        emit({"error": "missing dependency: %s" % e})
        sys.exit(1)

    try:
        model = joblib.load(sys.argv[1])
    except Exception as e:
        emit({"error": "load failed: %s" % e})
        sys.exit(1)

    try:
        classes = [int(c) for c in getattr(model, "classes_", [])]
    except (TypeError, ValueError):
        classes = []
    emit({
        "ready": True,
        "n_features": int(getattr(model, "n_features_in_", 0) or 0),
        "classes": classes,
    })

    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            request = json.loads(line)
            rows = np.asarray(request["rows"], dtype=np.float64)
            emit({"labels": [int(v) for v in model.predict(rows)]})
        except Exception as e:
            emit({"error": str(e)})


if __name__ == "__main__":
    main()
`
