package genfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cppla/aiblog/utils"
)

type opKind int

const (
	opMove opKind = iota
	opRemove
)

type fileOp struct {
	kind opKind
	src  string
	dst  string
}

// Commit records file system changes that belong to a database transaction.
// Apply runs them in order after the transaction committed; Discard drops
// them and deletes the staged sources after a rollback.
type Commit struct {
	ops []fileOp
}

// NewCommit returns an empty Commit.
func NewCommit() *Commit {
	return &Commit{}
}

// Move schedules moving the staged file src to dst.
func (c *Commit) Move(src, dst string) {
	c.ops = append(c.ops, fileOp{kind: opMove, src: src, dst: dst})
}

// Remove schedules deleting path. A missing file is not an error.
func (c *Commit) Remove(path string) {
	c.ops = append(c.ops, fileOp{kind: opRemove, dst: path})
}

// Len reports the number of scheduled operations.
func (c *Commit) Len() int {
	return len(c.ops)
}

// Apply performs the scheduled operations. It keeps going after a failure
// and returns every error joined.
func (c *Commit) Apply() error {
	var errs []error
	for _, op := range c.ops {
		var err error
		switch op.kind {
		case opMove:
			err = moveFile(op.src, op.dst)
		case opRemove:
			err = removeFile(op.dst)
		}
		if err != nil {
			utils.Logger.Error("genfile commit step failed", zap.String("src", op.src), zap.String("dst", op.dst), zap.Error(err))
			errs = append(errs, err)
		}
	}
	c.ops = nil
	return errors.Join(errs...)
}

// Discard deletes the staged sources of pending moves.
func (c *Commit) Discard() {
	for _, op := range c.ops {
		if op.kind == opMove {
			if err := removeFile(op.src); err != nil {
				utils.Logger.Warn("genfile discard failed", zap.String("path", op.src), zap.Error(err))
			}
		}
	}
	c.ops = nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// moveFile renames src to dst, copying when the two live on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
