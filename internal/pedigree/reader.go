package pedigree

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Record is one parsed pedigree log row.
type Record struct {
	Generation int
	Stage      string
	PedigreeID int64
	Age        int
	Parent1    int64
	Parent2    int64
}

// ReadFile parses a pedigree log file produced by Logger.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pedigree log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Read(file)
}

// Read parses records from r. The first line must be the fixed header.
func Read(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("pedigree log is empty")
	}
	header := strings.Join(Columns, "\t")
	if scanner.Text() != header {
		return nil, fmt.Errorf("unexpected pedigree header: %q", scanner.Text())
	}

	var records []Record
	line := 1
	for scanner.Scan() {
		line++
		record, err := parseRecord(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseRecord(text string) (Record, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != len(Columns) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(fields))
	}
	generation, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("generation: %w", err)
	}
	pedigreeID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("individual: %w", err)
	}
	age, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("age: %w", err)
	}
	parent1, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("parent1: %w", err)
	}
	parent2, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("parent2: %w", err)
	}
	return Record{
		Generation: generation,
		Stage:      fields[1],
		PedigreeID: pedigreeID,
		Age:        age,
		Parent1:    parent1,
		Parent2:    parent2,
	}, nil
}

// Validate checks the structural invariants of a parsed log: generations
// start at 1 and increase by exactly 1 across boundaries, stages within a
// generation run as one early block followed by one late block, and stage
// values are well-formed.
func Validate(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	generation := 0
	stage := ""
	for i, record := range records {
		if record.Stage != "early" && record.Stage != "late" {
			return fmt.Errorf("record %d: unknown stage %q", i+1, record.Stage)
		}
		switch {
		case record.Generation == generation:
			if record.Stage == "early" && stage == "late" {
				return fmt.Errorf("record %d: early stage after late in generation %d", i+1, generation)
			}
		case record.Generation == generation+1:
			if record.Stage != "early" {
				return fmt.Errorf("record %d: generation %d begins with %s stage", i+1, record.Generation, record.Stage)
			}
			generation = record.Generation
		default:
			return fmt.Errorf("record %d: generation %d follows %d", i+1, record.Generation, generation)
		}
		stage = record.Stage
	}
	return nil
}
