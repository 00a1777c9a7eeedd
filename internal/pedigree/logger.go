// Package pedigree writes and reads the per-individual lineage log: one
// tab-separated record per individual per stage per generation, appended to
// a single file owned by the Logger for the lifetime of a run.
package pedigree

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"stirps/internal/model"
)

// Columns is the fixed header, in column order.
var Columns = []string{"generation", "stage", "individual", "age", "parent1", "parent2"}

// Logger owns the log file handle. It is opened for truncation exactly once
// by WriteHeader; every later write is an append. The Logger is the file's
// sole writer for the run's lifetime and must be closed on every exit path.
type Logger struct {
	path       string
	file       *os.File
	ageTracked bool
	records    int
}

// NewLogger prepares a logger for the given path. AgeTracked selects whether
// the age column carries real ages or the not-tracked sentinel.
func NewLogger(path string, ageTracked bool) (*Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("pedigree log path is required")
	}
	return &Logger{path: path, ageTracked: ageTracked}, nil
}

// WriteHeader truncates or creates the log file and writes the header line.
// It must be called exactly once, before any record.
func (l *Logger) WriteHeader() error {
	if l.file != nil {
		return fmt.Errorf("pedigree log header already written: %s", l.path)
	}
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open pedigree log: %w", err)
	}
	if _, err := file.WriteString(strings.Join(Columns, "\t") + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write pedigree header: %w", err)
	}
	l.file = file
	return nil
}

// WriteRecord appends one record for an individual. The line is formatted
// fully in memory and emitted with a single write, so a failure surfaces
// before any bytes reach the file.
func (l *Logger) WriteRecord(generation int, stage string, ind model.Individual) error {
	if l.file == nil {
		return fmt.Errorf("pedigree log is not open: %s", l.path)
	}

	age := model.AgeNotTracked
	if l.ageTracked {
		age = ind.Age
	}

	var b strings.Builder
	b.Grow(64)
	b.WriteString(strconv.Itoa(generation))
	b.WriteByte('\t')
	b.WriteString(stage)
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(ind.PedigreeID, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(age))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(ind.Parent1, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(ind.Parent2, 10))
	b.WriteByte('\n')

	if _, err := l.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("append pedigree record: %w", err)
	}
	l.records++
	return nil
}

// Records reports how many data records have been appended.
func (l *Logger) Records() int {
	return l.records
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Close flushes and releases the file handle. Safe to call more than once
// and before the header has been written.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync pedigree log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close pedigree log: %w", err)
	}
	return nil
}
