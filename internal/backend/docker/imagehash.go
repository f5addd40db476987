package docker

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

var excludedDirNames = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".venv": true,
	".mypy_cache": true, ".pytest_cache": true, ".ruff_cache": true,
	".pdm-build": true, "__pycache__": true, "node_modules": true,
}

var excludedFileNames = map[string]bool{
	".DS_Store": true,
}

// ComputeImageDigest hashes every file in contextDir (sorted,
// exclusion-filtered) plus the Dockerfile if it lives outside the
// context, producing a deterministic build-cache key.
func ComputeImageDigest(contextDir, dockerfile string) (string, error) {
	h := blake3.New()

	files, err := sortedContextFiles(contextDir)
	if err != nil {
		return "", err
	}
	for _, rel := range files {
		h.Write([]byte("file\x00"))
		h.Write([]byte(rel))
		h.Write([]byte{0})
		if err := hashFile(h, filepath.Join(contextDir, rel)); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}

	absDockerfile, err := filepath.Abs(dockerfile)
	if err != nil {
		return "", err
	}
	absContext, err := filepath.Abs(contextDir)
	if err != nil {
		return "", err
	}
	rel, relErr := filepath.Rel(absContext, absDockerfile)
	inContext := relErr == nil && !isOutside(rel)
	if !inContext {
		h.Write([]byte("dockerfile\x00"))
		if err := hashFile(h, absDockerfile); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}

	sum := h.Sum(nil)
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out), nil
}

func isOutside(rel string) bool {
	return rel == ".." || len(rel) >= 3 && rel[:3] == "../"
}

func sortedContextFiles(contextDir string) ([]string, error) {
	var out []string
	if err := walk(contextDir, contextDir, &out); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func walk(root, dir string, out *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() {
			if excludedDirNames[e.Name()] {
				continue
			}
			if err := walk(root, filepath.Join(dir, e.Name()), out); err != nil {
				return err
			}
			continue
		}
		if excludedFileNames[e.Name()] {
			continue
		}
		abs := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}
		*out = append(*out, filepath.ToSlash(rel))
	}
	return nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
