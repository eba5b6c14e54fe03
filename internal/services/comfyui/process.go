package comfyui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// LaunchSpec describes how to start the server process.
type LaunchSpec struct {
	Runtime string
	Args    []string
	Dir     string
	// LogPath, when set, receives every merged output line.
	LogPath string
	// OnLine, when set, is called for each merged output line from the
	// reader goroutine.
	OnLine func(string)
}

// Process is a handle to a launched server process.
type Process interface {
	PID() int
	// Running reports whether the process has not yet exited.
	Running() bool
	// WaitExit blocks until the process exits or d elapses; true on exit.
	WaitExit(d time.Duration) bool
	// Output returns the tail of the captured merged stdout and stderr.
	Output() string
	// Terminate asks the process to shut down gracefully.
	Terminate() error
	// KillTree force-kills the process and every descendant, children
	// first, confirming each death for up to confirm. The returned error
	// aggregates processes that could not be confirmed dead.
	KillTree(confirm time.Duration) error
}

// Launcher abstracts process creation for testability.
type Launcher interface {
	Launch(spec LaunchSpec) (Process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(spec LaunchSpec) (Process, error) {
	cmd := exec.Command(spec.Runtime, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir

	// Stdout and stderr share one pipe so the log keeps the server's own
	// interleaving.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	var logFile *os.File
	if spec.LogPath != "" {
		logFile, err = os.OpenFile(spec.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			reader.Close()
			writer.Close()
			return nil, fmt.Errorf("open server log: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("start command: %w", err)
	}
	writer.Close()

	proc := &osProcess{cmd: cmd, exited: make(chan struct{})}
	go proc.consume(reader, logFile, spec.OnLine)
	go proc.reap()
	return proc, nil
}

type osProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}

	mu   sync.Mutex
	tail []byte
}

const outputTailLimit = 16 * 1024

func (p *osProcess) consume(r io.ReadCloser, logFile *os.File, onLine func(string)) {
	defer r.Close()
	if logFile != nil {
		defer logFile.Close()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.record(line)
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		if onLine != nil {
			onLine(line)
		}
	}
}

func (p *osProcess) record(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail = append(p.tail, line...)
	p.tail = append(p.tail, '\n')
	if overflow := len(p.tail) - outputTailLimit; overflow > 0 {
		p.tail = append(p.tail[:0], p.tail[overflow:]...)
	}
}

func (p *osProcess) reap() {
	_ = p.cmd.Wait()
	close(p.exited)
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *osProcess) WaitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.exited:
		return true
	case <-timer.C:
		return false
	}
}

func (p *osProcess) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.tail)
}

func (p *osProcess) Terminate() error {
	return p.cmd.Process.Signal(unix.SIGTERM)
}

func (p *osProcess) KillTree(confirm time.Duration) error {
	return killTree(p.cmd.Process.Pid, confirm)
}

// killTree kills pid and its descendants with SIGKILL, deepest first so
// workers die before the parent that would respawn or wait on them.
func killTree(pid int, confirm time.Duration) error {
	victims := append(descendantsOf(pid), pid)
	var errs []error
	for _, victim := range victims {
		if err := unix.Kill(victim, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", victim, err))
			continue
		}
		if !confirmDead(victim, confirm) {
			errs = append(errs, fmt.Errorf("pid %d not confirmed dead", victim))
		}
	}
	return errors.Join(errs...)
}

// descendantsOf lists pid's children depth-first, leaves before parents.
func descendantsOf(pid int) []int {
	var out []int
	for _, child := range childrenOf(pid) {
		out = append(out, descendantsOf(child)...)
		out = append(out, child)
	}
	return out
}

func childrenOf(pid int) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var children []int
	for _, entry := range entries {
		candidate, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if parentOf(candidate) == pid {
			children = append(children, candidate)
		}
	}
	return children
}

// parentOf reads the ppid from /proc/<pid>/stat. The comm field may itself
// contain spaces or parentheses, so parsing starts after the last ')'.
func parentOf(pid int) int {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return -1
	}
	text := string(data)
	idx := strings.LastIndexByte(text, ')')
	if idx < 0 {
		return -1
	}
	fields := strings.Fields(text[idx+1:])
	if len(fields) < 2 {
		return -1
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return -1
	}
	return ppid
}

func confirmDead(pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		if err := unix.Kill(pid, 0); err != nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}
