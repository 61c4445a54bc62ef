package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"dory/internal/models"
	"dory/internal/util"
)

// ReadRecords parses a chunk/meta JSONL file. Blank lines are skipped; a line that
// is not a record is an integrity error.
func ReadRecords(path string) ([]models.ChunkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", util.ErrResourceMissing, path)
		}
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	var out []models.ChunkRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec models.ChunkRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", util.ErrIntegrity, path, line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan records %s: %w", path, err)
	}
	return out, nil
}
