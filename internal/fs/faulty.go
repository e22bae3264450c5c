package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by FaultyFS when a rule carries no Err.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior.
//
// Counters are per open file. A value of -1 disables the corresponding limit,
// 0 fails every call.
type Fault struct {
	FailOnOpen      bool
	FailReadsAfter  int // Fail ReadAt after this many successful calls.
	FailWritesAfter int // Fail WriteAt after this many successful calls.
	FailOnSync      bool
	FailOnClose     bool
	FailOnTruncate  bool
	Err             error
}

// NoFault is a Fault that never fails.
var NoFault = Fault{FailReadsAfter: -1, FailWritesAfter: -1}

// FaultyFS is a FileSystem wrapper that can inject errors.
//
// Rules are matched against the file name on every call, so a rule added or
// cleared after a file was opened takes effect immediately.
type FaultyFS struct {
	FS      FileSystem
	mu      sync.Mutex
	rules   map[string]Fault // Filename pattern -> Fault
	Default Fault            // Fallback

	reads  int64
	writes int64
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:      fs,
		rules:   make(map[string]Fault),
		Default: NoFault,
	}
}

// AddRule adds a fault injection rule for a specific file pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes every rule. The Default fault stays in place.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

// Reads returns the number of successful ReadAt calls across all files.
func (f *FaultyFS) Reads() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Writes returns the number of successful WriteAt calls across all files.
func (f *FaultyFS) Writes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault := f.Default
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
		}
	}
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	if fault := f.faultFor(name); fault.FailOnOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: fault.Err}
	}

	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

type faultyFile struct {
	File
	fs     *FaultyFS
	name   string
	reads  int
	writes int
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	fault := ff.fs.faultFor(ff.name)
	if fault.FailReadsAfter >= 0 && ff.reads >= fault.FailReadsAfter {
		return 0, fault.Err
	}

	n, err := ff.File.ReadAt(p, off)
	ff.reads++
	ff.fs.mu.Lock()
	ff.fs.reads++
	ff.fs.mu.Unlock()
	return n, err
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	fault := ff.fs.faultFor(ff.name)
	if fault.FailWritesAfter >= 0 && ff.writes >= fault.FailWritesAfter {
		return 0, fault.Err
	}

	n, err := ff.File.WriteAt(p, off)
	ff.writes++
	ff.fs.mu.Lock()
	ff.fs.writes++
	ff.fs.mu.Unlock()
	return n, err
}

func (ff *faultyFile) Sync() error {
	if fault := ff.fs.faultFor(ff.name); fault.FailOnSync {
		return fault.Err
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Truncate(size int64) error {
	if fault := ff.fs.faultFor(ff.name); fault.FailOnTruncate {
		return fault.Err
	}
	return ff.File.Truncate(size)
}

func (ff *faultyFile) Close() error {
	if fault := ff.fs.faultFor(ff.name); fault.FailOnClose {
		_ = ff.File.Close() // release the descriptor anyway
		return fault.Err
	}
	return ff.File.Close()
}
