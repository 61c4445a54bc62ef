package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dory/internal/models"
	"dory/internal/util"

	"github.com/ternarybob/arbor"
)

// LocalDir is the folder holding a corpus' raw documents.
func LocalDir(knowledgeRoot string, corpus models.Domain) string {
	return filepath.Join(knowledgeRoot, "local", string(corpus))
}

func ManifestPath(knowledgeRoot string, corpus models.Domain) string {
	return filepath.Join(knowledgeRoot, fmt.Sprintf("manifest_%s.json", corpus))
}

func ChunksPath(indexDir string, corpus models.Domain) string {
	return filepath.Join(indexDir, fmt.Sprintf("chunks_%s.jsonl", corpus))
}

// MimeFor maps a file extension onto the mime recorded in chunk metadata.
func MimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/docx"
	default:
		return "text/plain"
	}
}

// BuildManifest walks knowledge/local/<corpus> and writes manifest_<corpus>.json.
// A missing folder is not an error: the manifest is written empty.
func BuildManifest(knowledgeRoot string, corpus models.Domain, logger arbor.ILogger) (models.Manifest, error) {
	root := LocalDir(knowledgeRoot, corpus)
	m := models.Manifest{Corpus: corpus, Root: root, CreatedAt: time.Now().UTC(), Files: []models.ManifestFile{}}

	info, err := os.Stat(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return models.Manifest{}, fmt.Errorf("stat corpus folder: %w", err)
	}
	if err != nil || !info.IsDir() {
		logger.Warn().Str("corpus", string(corpus)).Str("path", root).Msg("Corpus folder missing; writing empty manifest")
	} else {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			sum, err := util.SHA256File(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return fmt.Errorf("relative path: %w", err)
			}
			m.Files = append(m.Files, models.ManifestFile{
				Path:   filepath.ToSlash(rel),
				Name:   d.Name(),
				Mime:   MimeFor(path),
				Size:   info.Size(),
				SHA256: sum,
			})
			return nil
		})
		if err != nil {
			return models.Manifest{}, fmt.Errorf("walk corpus folder: %w", err)
		}
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })

	if err := util.WriteJSONAtomic(ManifestPath(knowledgeRoot, corpus), m); err != nil {
		return models.Manifest{}, err
	}
	logger.Info().Str("corpus", string(corpus)).Int("files", len(m.Files)).Msg("Manifest written")
	return m, nil
}

// ReadManifest loads a manifest written by BuildManifest.
func ReadManifest(knowledgeRoot string, corpus models.Domain) (models.Manifest, error) {
	path := ManifestPath(knowledgeRoot, corpus)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Manifest{}, fmt.Errorf("%w: %s", util.ErrResourceMissing, path)
		}
		return models.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m models.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return models.Manifest{}, fmt.Errorf("%w: manifest %s: %v", util.ErrIntegrity, path, err)
	}
	return m, nil
}
