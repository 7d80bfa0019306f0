// Package output formats extracted slide fields and writes the two text
// files consumed by the display tool.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/stagelink/os2obs/internal/opensong"
)

const fileMode = 0o644

// Writer owns the two output file paths. Every write fully overwrites the
// previous content; the display tool re-reads the files on change.
type Writer struct {
	titlePath string
	versePath string

	// atomic switches to a write-to-temp-then-rename strategy. Off by
	// default: some readers watch the inode rather than the path.
	atomic bool
}

// New creates a Writer for the given metadata and verse file paths.
func New(titlePath, versePath string, atomic bool) *Writer {
	return &Writer{
		titlePath: titlePath,
		versePath: versePath,
		atomic:    atomic,
	}
}

// Write renders the fields and overwrites both files.
func (w *Writer) Write(fields opensong.Fields) error {
	if err := w.writeFile(w.titlePath, FormatMetadata(fields)); err != nil {
		return fmt.Errorf("write title file: %w", err)
	}
	if err := w.writeFile(w.versePath, FormatVerses(fields)); err != nil {
		return fmt.Errorf("write verse file: %w", err)
	}
	return nil
}

// Blank empties both files. Called once at startup so the display tool never
// shows leftovers from a previous run.
func (w *Writer) Blank() error {
	if err := w.writeFile(w.titlePath, ""); err != nil {
		return fmt.Errorf("blank title file: %w", err)
	}
	if err := w.writeFile(w.versePath, ""); err != nil {
		return fmt.Errorf("blank verse file: %w", err)
	}
	return nil
}

func (w *Writer) writeFile(path, content string) error {
	if w.atomic {
		return renameio.WriteFile(path, []byte(content), fileMode)
	}
	return os.WriteFile(path, []byte(content), fileMode)
}

// FormatMetadata renders the metadata blob: quoted title and authors on the
// first line, CCLI number on a second line when present.
func FormatMetadata(f opensong.Fields) string {
	var b strings.Builder
	if f.Title != "" {
		fmt.Fprintf(&b, "\"%s\"", f.Title)
	}
	if len(f.Authors) > 0 {
		fmt.Fprintf(&b, " - %s", strings.Join(f.Authors, ", "))
	}
	if f.CCLI != "" {
		fmt.Fprintf(&b, "\nCCLI Song #%s", f.CCLI)
	}
	return b.String()
}

// FormatVerses renders all verse blocks line by line, in document order,
// without a trailing newline.
func FormatVerses(f opensong.Fields) string {
	var b strings.Builder
	for _, block := range f.Verses {
		for _, line := range block {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
