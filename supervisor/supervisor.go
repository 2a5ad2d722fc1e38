// Package supervisor owns the lifecycle of external job processes and
// bridges their output into the event pipeline.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/normalize"
	"github.com/runforge/runforge/registry"
	"github.com/runforge/runforge/service"
)

// Job describes one external automation job to execute.
type Job struct {
	JobID   string   `json:"jobId"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"` // extra KEY=VALUE pairs
}

// Supervisor launches jobs and pumps their output through the pipeline.
// One goroutine per run; runs share nothing but the pipeline itself.
type Supervisor struct {
	svc           *service.Service
	registry      *registry.Registry
	fallbackShell string
	logger        *zap.Logger
}

// New creates a Supervisor. fallbackShell is tried once when a job's primary
// command is not found.
func New(svc *service.Service, reg *registry.Registry, fallbackShell string, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		svc:           svc,
		registry:      reg,
		fallbackShell: fallbackShell,
		logger:        logger,
	}
}

// Launch registers a new run and starts the job process in the background.
// It returns the assigned run id immediately.
func (s *Supervisor) Launch(job Job) string {
	runID := "run_" + uuid.New().String()[:8]
	s.registry.Add(runID, job.JobID)
	go s.run(runID, job)
	return runID
}

// run executes the job to completion. It never panics: every failure path
// marks the run FAILED with the underlying error.
func (s *Supervisor) run(runID string, job Job) {
	cmd, out, err := s.start(job)
	if err != nil {
		s.logger.Error("job launch failed",
			zap.String("run_id", runID), zap.String("job_id", job.JobID), zap.Error(err))
		s.registry.Finish(runID, domain.EphemeralFailed, nil, err.Error())
		s.svc.RunClosed(runID)
		return
	}

	amb := normalize.Ambient{
		RunID:    runID,
		JobID:    job.JobID,
		RunnerID: fmt.Sprintf("proc_%d", cmd.Process.Pid),
		Source:   domain.SourceAutomation,
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
		out.close()
	}()

	scanner := bufio.NewScanner(out.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.handleLine(runID, scanner.Text(), amb)
	}
	if err := scanner.Err(); err != nil {
		// An oversized line aborts the scan. Keep draining the pipe so the
		// process is not blocked on a full stdout and Wait can return.
		s.logger.Warn("output scan aborted, draining remaining output",
			zap.String("run_id", runID), zap.Error(err))
		io.Copy(io.Discard, out.r)
	}

	waitErr := <-done
	s.finish(runID, waitErr)
}

// handleLine pumps one output line: always into the tail buffer, and through
// the pipeline unless it is internal noise.
func (s *Supervisor) handleLine(runID, line string, amb normalize.Ambient) {
	s.registry.AppendLog(runID, line)
	if internalNoise(line) {
		return
	}

	ev := normalize.Line(line, amb)
	if _, err := s.svc.Ingest(context.Background(), ev); err != nil {
		// Fatal to this one line only; the run keeps going.
		s.logger.Warn("line dropped", zap.String("run_id", runID), zap.Error(err))
	}
}

// finish records the terminal state and tears down per-run pipeline state.
func (s *Supervisor) finish(runID string, waitErr error) {
	defer s.svc.RunClosed(runID)

	if waitErr == nil {
		code := 0
		s.registry.Finish(runID, domain.EphemeralSuccess, &code, "")
		return
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		s.registry.Finish(runID, domain.EphemeralFailed, &code, waitErr.Error())
		return
	}
	s.registry.Finish(runID, domain.EphemeralFailed, nil, waitErr.Error())
}

// pipeOutput combines stdout and stderr into one line stream.
type pipeOutput struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeOutput) close() { _ = p.w.Close() }

// start spawns the job with inherited environment and combined output. When
// the primary command is missing it retries once through the fallback shell.
func (s *Supervisor) start(job Job) (*exec.Cmd, *pipeOutput, error) {
	cmd := exec.Command(job.Command, job.Args...)
	out, err := s.spawn(cmd, job)
	if err == nil {
		return cmd, out, nil
	}
	if !errors.Is(err, exec.ErrNotFound) || s.fallbackShell == "" {
		return nil, nil, fmt.Errorf("start job %s: %w", job.JobID, err)
	}

	line := strings.Join(append([]string{job.Command}, job.Args...), " ")
	fallback := exec.Command(s.fallbackShell, "-c", line)
	out, ferr := s.spawn(fallback, job)
	if ferr != nil {
		return nil, nil, fmt.Errorf("start job %s (fallback after %v): %w", job.JobID, err, ferr)
	}
	s.logger.Warn("primary command missing, using fallback shell",
		zap.String("job_id", job.JobID), zap.String("command", job.Command))
	return fallback, out, nil
}

func (s *Supervisor) spawn(cmd *exec.Cmd, job Job) (*pipeOutput, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.Env = append(os.Environ(), job.Env...)
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}
	return &pipeOutput{r: pr, w: pw}, nil
}

// selfLogMarker prefixes the supervisor's own structured self-log lines;
// processing them again would duplicate events.
const selfLogMarker = "::runforge::"

// noisePrefixes are tool-chatter prefixes that carry no run signal.
var noisePrefixes = []string{
	selfLogMarker,
	"npm WARN",
	"npm notice",
	"yarn install",
}

func internalNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, p := range noisePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}
