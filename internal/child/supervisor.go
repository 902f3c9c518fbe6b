// Package child isolates job execution in a subprocess, the Go analogue of
// Resque's fork-per-job model. Go has no cheap post-startup fork, so
// instead of forking, the worker re-execs its own binary with a
// --perform-job flag; the child reads the job payload on stdin, runs the
// registered handler, and reports its outcome on stdout. A crash, panic,
// or signal in the child never takes the parent worker down with it.
package child

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/emberqueue/ember/internal/job"
)

// Outcome is what the parent worker learns once a child exits.
type Outcome struct {
	// Success is true only if the child reported a clean, successful
	// terminal status on stdout.
	Success bool
	// Result is the handler's return payload, set only on Success.
	Result json.RawMessage
	// ErrorMessage is the handler's reported error, set when the child
	// exited cleanly but the job itself failed.
	ErrorMessage string
	// DirtyExit is true when the child terminated by signal, non-zero
	// exit without reporting a status, or otherwise didn't get a chance
	// to write a terminal status - a crash, not a job failure.
	DirtyExit bool
	// Signaled is true when the child was killed by a signal (or dumped
	// core) rather than exiting with a plain status code.
	Signaled bool
	// Signal, when non-empty, names the signal that killed the child.
	Signal string
	// ExitCode is the child's exit status code, set when DirtyExit is
	// true and Signaled is false.
	ExitCode int
}

// reportLine is the JSON line a child process writes to stdout right
// before exiting to report how the job went.
type reportLine struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Supervisor launches and tracks one job's child process at a time for a
// single worker.
type Supervisor struct {
	selfExe      string
	performFlag  string
	mu           sync.Mutex
	currentCmd   *exec.Cmd
}

// NewSupervisor creates a Supervisor that re-execs selfExe (typically
// os.Args[0]) with performFlag (e.g. "--perform-job") to run one job.
func NewSupervisor(selfExe, performFlag string) *Supervisor {
	return &Supervisor{selfExe: selfExe, performFlag: performFlag}
}

// RunJob executes payload in a child process and blocks until it exits or
// ctx is cancelled. Cancelling ctx kills the child immediately (the worker
// does this when its per-job timeout elapses).
func (s *Supervisor) RunJob(ctx context.Context, payload *job.Payload) (Outcome, error) {
	data, err := payload.Encode()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to encode job for child: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.selfExe, s.performFlag)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Env = os.Environ()

	s.mu.Lock()
	s.currentCmd = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.currentCmd = nil
		s.mu.Unlock()
	}()

	runErr := cmd.Run()

	if runErr == nil {
		var report reportLine
		if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &report); err != nil {
			// Exited 0 but never wrote a parseable report: treat as a
			// dirty exit rather than guess at success.
			return Outcome{DirtyExit: true}, nil
		}
		if report.Success {
			return Outcome{Success: true, Result: report.Result}, nil
		}
		return Outcome{Success: false, ErrorMessage: report.Error}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && (status.Signaled() || status.CoreDump()) {
			return Outcome{DirtyExit: true, Signaled: true, Signal: status.Signal().String()}, nil
		}
		// Non-zero exit with no recognizable signal: dirty exit, the
		// child didn't get to (or chose not to) report a clean status.
		return Outcome{DirtyExit: true, ExitCode: exitErr.ExitCode()}, nil
	}

	if ctx.Err() != nil {
		return Outcome{DirtyExit: true, Signaled: true, Signal: "killed (shutdown)"}, nil
	}

	return Outcome{}, fmt.Errorf("failed to run child for job %s: %w", payload.ID, runErr)
}

// Kill terminates the in-flight child, if any, used for SIGUSR1 handling
// and for SIGTERM/SIGINT immediate shutdown. It does not affect the worker
// loop itself.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	cmd := s.currentCmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// Perform runs handler against the job payload read from stdin and returns
// its outcome as a single JSON report line for the child to write to
// stdout. A panic in the handler is recovered into a failure report
// instead of crashing the child uncaught - the child still exits 0 in
// that case, reporting the job, not the process, as having failed.
func Perform(ctx context.Context, stdin []byte, timeout time.Duration, run func(context.Context, *job.Payload) ([]byte, error)) []byte {
	p, err := job.Decode(stdin)
	if err != nil {
		return marshalReport(reportLine{Success: false, Error: fmt.Sprintf("failed to decode job payload: %v", err)})
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := safeRun(runCtx, p, run)
	if err != nil {
		return marshalReport(reportLine{Success: false, Error: err.Error()})
	}
	return marshalReport(reportLine{Success: true, Result: result})
}

func safeRun(ctx context.Context, p *job.Payload, run func(context.Context, *job.Payload) ([]byte, error)) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()
	return run(ctx, p)
}

func marshalReport(r reportLine) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// Marshaling our own report struct failing is not something a
		// job's content can cause; fall back to a minimal manual report.
		return []byte(`{"success":false,"error":"failed to marshal job report"}`)
	}
	return append(data, '\n')
}

