// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Locker is an exclusive, non-blocking, cross-process lock.
type Locker interface {
	// Acquire takes the lock or returns *ErrLockHeld.
	Acquire() error

	// Release drops the lock. Safe to call when not held.
	Release() error

	// IsHeld reports whether this instance holds the lock.
	IsHeld() bool
}

// LockConfig configures a Lock.
type LockConfig struct {
	// Dir holds the lock and pid files. Created if missing.
	// Default: system temp directory
	Dir string

	// Name is the base name of the lock files.
	// Default: "parity"
	Name string
}

// Lock implements Locker with flock(2) on "<Dir>/<Name>.lock". The holder
// writes its PID to "<Dir>/<Name>.pid" so a blocked caller can name it.
type Lock struct {
	lockPath string
	pidPath  string
	dir      string
	file     *os.File
	held     bool
}

// NewLock creates an unacquired lock.
func NewLock(config LockConfig) *Lock {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Name == "" {
		config.Name = "parity"
	}
	return &Lock{
		dir:      config.Dir,
		lockPath: filepath.Join(config.Dir, config.Name+".lock"),
		pidPath:  filepath.Join(config.Dir, config.Name+".pid"),
	}
}

// Acquire attempts a non-blocking exclusive lock.
func (p *Lock) Acquire() error {
	if p.held {
		return nil
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create lock dir %s: %w", p.dir, err)
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	p.file = f
	p.held = true

	// PID file is informational only; the flock is the lock.
	_ = os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
	return nil
}

// Release drops the lock and removes the pid file.
func (p *Lock) Release() error {
	if !p.held || p.file == nil {
		return nil
	}

	os.Remove(p.pidPath)

	err := unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	p.file.Close()
	p.file = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock.
func (p *Lock) IsHeld() bool {
	return p.held
}

// LockPath returns the lock file path.
func (p *Lock) LockPath() string {
	return p.lockPath
}

func (p *Lock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when another process holds the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another parity process is managing this project (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another parity process is managing this project (check: lsof %s)", e.LockPath)
}

var _ Locker = (*Lock)(nil)
