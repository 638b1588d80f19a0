package env

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tchajed/specious-kv/engine"
	"github.com/tchajed/specious-kv/fs"
)

// RecoveryStrategy says what to do when an environment fails to open because
// it is corrupt.
type RecoveryStrategy int

const (
	// Error reports the corruption and leaves the files alone.
	Error RecoveryStrategy = iota
	// Discard deletes the engine's files and starts empty.
	Discard
	// Rename moves each engine file f to f.corrupt and starts empty.
	Rename
)

// CorruptSuffix is appended to the names of files moved aside by Rename.
const CorruptSuffix = ".corrupt"

func (s RecoveryStrategy) String() string {
	switch s {
	case Error:
		return "error"
	case Discard:
		return "discard"
	case Rename:
		return "rename"
	}
	return fmt.Sprintf("RecoveryStrategy(%d)", int(s))
}

// ParseRecoveryStrategy parses "error", "discard" or "rename", ignoring case.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, error) {
	switch strings.ToLower(s) {
	case "error":
		return Error, nil
	case "discard":
		return Discard, nil
	case "rename":
		return Rename, nil
	}
	return Error, fmt.Errorf("unknown recovery strategy %q", s)
}

func (s *RecoveryStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseRecoveryStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s RecoveryStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type openState int

const (
	stateOpening openState = iota
	stateRecovering
	stateOpen
	stateFailed
)

type action int

const (
	actionDone action = iota
	actionFail
	actionDiscard
	actionRename
)

// decide is the recovery policy: given the result of an open attempt, it
// picks what to do next. Only corruption is recovered from, and only once.
func decide(openErr error, strategy RecoveryStrategy, recovered bool) action {
	switch {
	case openErr == nil:
		return actionDone
	case !errors.Is(openErr, engine.ErrCorrupt) || recovered:
		return actionFail
	case strategy == Discard:
		return actionDiscard
	case strategy == Rename:
		return actionRename
	}
	return actionFail
}

// discard removes the engine files in dir. Missing files are skipped.
func discard(fsys fs.Filesys, dir string, files []string) error {
	for _, f := range files {
		if err := fsys.RemoveAll(filepath.Join(dir, f)); err != nil {
			return err
		}
	}
	return nil
}

// moveAside renames each existing engine file f in dir to f.corrupt,
// replacing anything left there by an earlier recovery.
func moveAside(fsys fs.Filesys, dir string, files []string) error {
	for _, f := range files {
		src := filepath.Join(dir, f)
		ok, err := fsys.Exists(src)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		dst := src + CorruptSuffix
		if err := fsys.RemoveAll(dst); err != nil {
			return err
		}
		if err := fsys.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// recovery drives one open attempt of an environment directory through
// opening and, at most once, recovering.
type recovery struct {
	opener   engine.Opener
	fs       fs.Filesys
	dir      string
	strategy RecoveryStrategy
	logger   *zap.Logger

	state     openState
	recovered bool
	act       action
	env       engine.Env
	err       error
}

func (r *recovery) run() (engine.Env, error) {
	for {
		switch r.state {
		case stateOpening:
			r.env, r.err = r.opener.Open(r.dir)
			r.act = decide(r.err, r.strategy, r.recovered)
			switch r.act {
			case actionDone:
				r.state = stateOpen
			case actionFail:
				r.state = stateFailed
			default:
				r.state = stateRecovering
			}
		case stateRecovering:
			r.logger.Warn("recovering corrupt environment",
				zap.String("path", r.dir),
				zap.Stringer("strategy", r.strategy),
				zap.Error(r.err))
			var err error
			if r.act == actionDiscard {
				err = discard(r.fs, r.dir, r.opener.Files())
			} else {
				err = moveAside(r.fs, r.dir, r.opener.Files())
			}
			if err != nil {
				r.err = engine.IO(err)
				r.state = stateFailed
				continue
			}
			r.recovered = true
			r.state = stateOpening
		case stateOpen:
			return r.env, nil
		case stateFailed:
			return nil, engine.IO(r.err)
		}
	}
}
