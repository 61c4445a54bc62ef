package util

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func WriteJSONAtomic(path string, v any) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp json: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp json: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp json: %w", err)
	}
	return nil
}

// WriteFileAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never observe a half-written artifact.
func WriteFileAtomic(path string, write func(w *bufio.Writer) error) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// JSONLWriter streams one JSON document per line. Used where partial output is
// acceptable, e.g. the metadata file of an aborted embedding run.
type JSONLWriter struct {
	f *os.File
	w *bufio.Writer
	n int
}

func CreateJSONL(path string) (*JSONLWriter, error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl: %w", err)
	}
	return &JSONLWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (j *JSONLWriter) Write(row any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	if _, err := j.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	j.n++
	return nil
}

func (j *JSONLWriter) Count() int { return j.n }

func (j *JSONLWriter) Close() error {
	if err := j.w.Flush(); err != nil {
		_ = j.f.Close()
		return fmt.Errorf("flush jsonl: %w", err)
	}
	if err := j.f.Close(); err != nil {
		return fmt.Errorf("close jsonl: %w", err)
	}
	return nil
}
