package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/task"
)

// Copy copies files and directory trees into a destination directory.
// Directories are copied with their contents relative to the directory.
type Copy struct {
	From *task.FileCollection
	Into *lazy.Prop[string]
}

// NewCopy creates a Copy with no sources.
func NewCopy() *Copy {
	return &Copy{From: task.NewFileCollection(), Into: lazy.NewProp[string]("into")}
}

// Description implements task.Describer.
func (c *Copy) Description() string { return "Copies files into a directory" }

// DeclareIO implements task.IODeclarer.
func (c *Copy) DeclareIO(e *task.Executable, _ task.Project) error {
	e.SourceFiles(c.From)
	e.OutputFiles(new(task.FileCollection).AddProvider(c.Into))
	return nil
}

// Action implements task.Task.
func (c *Copy) Action(ctx context.Context, e *task.Executable, p task.Project) error {
	into, err := c.Into.FallibleGet()
	if err != nil {
		return err
	}
	if !filepath.IsAbs(into) {
		into = filepath.Join(p.Dir(), into)
	}

	roots, err := c.From.Paths(p.Dir())
	if err != nil {
		return err
	}
	copied := 0
	for _, root := range roots {
		n, err := copyTree(ctx, root, into)
		if err != nil {
			return err
		}
		copied += n
	}
	fmt.Fprintf(e.Stdout(), "copied %d file(s) into %s\n", copied, into)
	e.SetProperty("copied", copied)
	return nil
}

func copyTree(ctx context.Context, root, into string) (int, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 1, copyFile(root, filepath.Join(into, filepath.Base(root)))
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		count++
		return copyFile(path, filepath.Join(into, rel))
	})
	return count, err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
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
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
