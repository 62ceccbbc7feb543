// Package archive unpacks a skill package into in-memory text files,
// classified by role and bounded by per-file and total size budgets.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"skillvet/internal/hotspot"
	"skillvet/internal/model"
)

const (
	DefaultMaxFileSize  = 100 * 1024
	DefaultMaxTotalSize = 500 * 1024
	// MaxEntrySize bounds how much of a single entry is read into memory.
	MaxEntrySize = 10 * 1024 * 1024

	ManifestName = "SKILL.md"
)

// ErrInvalidArchive is returned when the container cannot be opened at all.
var ErrInvalidArchive = errors.New("invalid archive")

var scriptExtensions = map[string]bool{
	".py":   true,
	".sh":   true,
	".bash": true,
	".zsh":  true,
	".js":   true,
	".mjs":  true,
	".cjs":  true,
	".ts":   true,
	".rb":   true,
	".pl":   true,
	".php":  true,
	".ps1":  true,
	".lua":  true,
}

var documentExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".toml":     true,
}

// Options bounds extraction.
type Options struct {
	MaxFileSize  int
	MaxTotalSize int
}

// DefaultOptions returns the standard 100 KB / 500 KB budgets.
func DefaultOptions() Options {
	return Options{MaxFileSize: DefaultMaxFileSize, MaxTotalSize: DefaultMaxTotalSize}
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxTotalSize <= 0 {
		o.MaxTotalSize = DefaultMaxTotalSize
	}
	return o
}

// Result is the set of files kept from one archive.
type Result struct {
	ManifestFiles []model.ExtractedFile
	ScriptFiles   []model.ExtractedFile
	OtherFiles    []model.ExtractedFile
	SkippedFiles  []string
	// Manifest is the parsed frontmatter of the first manifest, if any.
	Manifest *Manifest
	// TotalSize is the byte count of all kept content.
	TotalSize int
}

// Files returns every kept file in priority order.
func (r *Result) Files() []model.ExtractedFile {
	files := make([]model.ExtractedFile, 0, len(r.ManifestFiles)+len(r.ScriptFiles)+len(r.OtherFiles))
	files = append(files, r.ManifestFiles...)
	files = append(files, r.ScriptFiles...)
	files = append(files, r.OtherFiles...)
	return files
}

// Empty reports whether no eligible file was kept.
func (r *Result) Empty() bool {
	return len(r.ManifestFiles)+len(r.ScriptFiles)+len(r.OtherFiles) == 0
}

// ExtractError explains why a single entry was excluded.
type ExtractError struct {
	Path   string
	Reason string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Path, e.Reason)
}

// entry is a raw archive member before budgeting.
type entry struct {
	path string
	role model.FileRole
	data []byte
	err  *ExtractError
}

// Extract unpacks data, which may be a zip or a gzip-compressed tar.
// Only a container that cannot be opened produces an error; problems with
// individual entries are recorded in SkippedFiles.
func Extract(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	var entries []entry
	var err error
	switch {
	case isGzip(data):
		entries, err = readTarGz(data)
	default:
		entries, err = readZip(data)
	}
	if err != nil {
		return nil, err
	}

	sortByPriority(entries)

	res := &Result{}
	for _, e := range entries {
		file, ferr := e.decode(opts.MaxFileSize)
		if ferr != nil {
			res.SkippedFiles = append(res.SkippedFiles, ferr.Error())
			continue
		}
		if res.TotalSize+len(file.Content) > opts.MaxTotalSize {
			res.SkippedFiles = append(res.SkippedFiles, (&ExtractError{Path: e.path, Reason: "total size limit reached"}).Error())
			continue
		}
		if file.Truncated {
			res.SkippedFiles = append(res.SkippedFiles, fmt.Sprintf("%s (truncated from %d KB to %d KB for analysis)",
				file.Path, file.Size/1024, len(file.Content)/1024))
		}
		res.TotalSize += len(file.Content)

		switch file.Role {
		case model.RoleManifest:
			if res.Manifest == nil {
				res.Manifest = ParseManifest(file.Content)
			}
			res.ManifestFiles = append(res.ManifestFiles, file)
		case model.RoleScript:
			res.ScriptFiles = append(res.ScriptFiles, file)
		default:
			res.OtherFiles = append(res.OtherFiles, file)
		}
	}

	return res, nil
}

// decode turns a raw entry into an ExtractedFile, truncating oversized text.
func (e entry) decode(maxFileSize int) (model.ExtractedFile, *ExtractError) {
	if e.err != nil {
		return model.ExtractedFile{}, e.err
	}
	if bytes.IndexByte(e.data, 0) >= 0 || !utf8.Valid(e.data) {
		return model.ExtractedFile{}, &ExtractError{Path: e.path, Reason: "could not decode as UTF-8 text"}
	}
	content := string(e.data)
	if len(content) <= maxFileSize {
		return model.ExtractedFile{Path: e.path, Content: content, Size: len(content), Role: e.role}, nil
	}
	tr := hotspot.Truncate(content, maxFileSize)
	return model.NewTruncatedFile(e.path, tr.Content, content, e.role), nil
}

// Classify returns the role of an archive path and whether it is eligible.
func Classify(name string) (model.FileRole, bool) {
	base := path.Base(name)
	if strings.EqualFold(base, ManifestName) {
		return model.RoleManifest, true
	}
	ext := strings.ToLower(path.Ext(base))
	switch {
	case scriptExtensions[ext]:
		return model.RoleScript, true
	case documentExtensions[ext]:
		return model.RoleOther, true
	}
	return "", false
}

func ignored(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), "._")
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

func rolePriority(r model.FileRole) int {
	switch r {
	case model.RoleManifest:
		return 0
	case model.RoleScript:
		return 1
	default:
		return 2
	}
}

// sortByPriority puts manifests first, then scripts, then the rest. Within
// a role, shallower paths come first so the root manifest wins.
func sortByPriority(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := rolePriority(entries[i].role), rolePriority(entries[j].role)
		if pi != pj {
			return pi < pj
		}
		di, dj := strings.Count(entries[i].path, "/"), strings.Count(entries[j].path, "/")
		if di != dj {
			return di < dj
		}
		return entries[i].path < entries[j].path
	})
}

func readZip(data []byte) ([]entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var entries []entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := cleanName(f.Name)
		if ignored(name) {
			continue
		}
		role, ok := Classify(name)
		if !ok {
			continue
		}
		e := entry{path: name, role: role}
		if f.UncompressedSize64 > MaxEntrySize {
			e.err = &ExtractError{Path: name, Reason: "file too large to read"}
			entries = append(entries, e)
			continue
		}
		e.data, e.err = readZipEntry(f, name)
		entries = append(entries, e)
	}
	return entries, nil
}

func readZipEntry(f *zip.File, name string) ([]byte, *ExtractError) {
	rc, err := f.Open()
	if err != nil {
		return nil, &ExtractError{Path: name, Reason: "could not read entry"}
	}
	defer rc.Close()
	data, err := readBounded(rc)
	if err != nil {
		return nil, &ExtractError{Path: name, Reason: err.Error()}
	}
	return data, nil
}

func readTarGz(data []byte) ([]entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var entries []entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(entries) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
			}
			// keep what was read before the stream broke
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := cleanName(hdr.Name)
		if ignored(name) {
			continue
		}
		role, ok := Classify(name)
		if !ok {
			continue
		}
		e := entry{path: name, role: role}
		if hdr.Size > MaxEntrySize {
			e.err = &ExtractError{Path: name, Reason: "file too large to read"}
			entries = append(entries, e)
			continue
		}
		b, rerr := readBounded(tr)
		if rerr != nil {
			e.err = &ExtractError{Path: name, Reason: rerr.Error()}
		}
		e.data = b
		entries = append(entries, e)
	}
	return entries, nil
}

func readBounded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxEntrySize+1))
	if err != nil {
		return nil, errors.New("could not read entry")
	}
	if len(data) > MaxEntrySize {
		return nil, errors.New("file too large to read")
	}
	return data, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
