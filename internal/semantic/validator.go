package semantic

import (
	"log/slog"
	"strings"

	"skillvet/internal/model"
)

// ValidationStats counts what the validator changed.
type ValidationStats struct {
	Kept         int
	Dropped      int
	LinesCleared int
	Rewritten    int
}

// fileIndex resolves model-supplied paths against the extracted files.
type fileIndex struct {
	byPath map[string]model.ExtractedFile
	paths  []string
}

func newFileIndex(files []model.ExtractedFile) *fileIndex {
	idx := &fileIndex{byPath: make(map[string]model.ExtractedFile, len(files))}
	for _, f := range files {
		idx.byPath[f.Path] = f
		idx.paths = append(idx.paths, f.Path)
	}
	return idx
}

// resolve finds the extracted file a reference names. Leading "./" and "/"
// are ignored, and a reference that is the path suffix of exactly one file
// resolves to that file. A reference longer than every candidate never
// resolves, whatever its prefix.
func (idx *fileIndex) resolve(ref string) (model.ExtractedFile, bool) {
	if f, ok := idx.byPath[ref]; ok {
		return f, true
	}
	clean := strings.TrimPrefix(strings.ReplaceAll(ref, "\\", "/"), "./")
	clean = strings.TrimLeft(clean, "/")
	if clean == "" {
		return model.ExtractedFile{}, false
	}
	if f, ok := idx.byPath[clean]; ok {
		return f, true
	}

	var match string
	for _, p := range idx.paths {
		if strings.HasSuffix(p, "/"+clean) {
			if match != "" {
				return model.ExtractedFile{}, false
			}
			match = p
		}
	}
	if match == "" {
		return model.ExtractedFile{}, false
	}
	return idx.byPath[match], true
}

// Validate checks every file reference in findings against the files that
// were actually extracted. Findings naming an unknown file are dropped; a
// line outside the file is cleared. Findings without a file are kept as is.
func Validate(findings []model.Finding, files []model.ExtractedFile, logger *slog.Logger) ([]model.Finding, ValidationStats) {
	idx := newFileIndex(files)
	var stats ValidationStats
	kept := make([]model.Finding, 0, len(findings))

	for _, f := range findings {
		if f.File == "" {
			kept = append(kept, f)
			continue
		}
		file, ok := idx.resolve(f.File)
		if !ok {
			stats.Dropped++
			if logger != nil {
				logger.Debug("Dropping finding for unknown file", "file", f.File, "title", f.Title)
			}
			continue
		}
		if f.File != file.Path {
			f.File = file.Path
			stats.Rewritten++
		}
		if f.Line != 0 && (f.Line < 1 || f.Line > file.LineCount()) {
			f.Line = 0
			stats.LinesCleared++
		}
		kept = append(kept, f)
	}
	stats.Kept = len(kept)

	if logger != nil && (stats.Dropped > 0 || stats.LinesCleared > 0) {
		logger.Warn("Removed hallucinated references from semantic findings",
			"dropped", stats.Dropped,
			"lines_cleared", stats.LinesCleared,
			"rewritten", stats.Rewritten,
			"kept", stats.Kept)
	}
	return kept, stats
}
