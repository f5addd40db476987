// Package capture implements lossy text-artifact capture: every
// requested artifact gets metadata back even when it is binary, huge,
// or unreadable. Nothing is silently dropped.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Policy controls how much of a text artifact gets captured.
type Policy struct {
	MaxExcerptBytes      int
	HeadBytes            int
	TailBytes            int
	MaxLineCount         int // 0 means unlimited
	BinaryDetectionBytes int
}

// DefaultPolicy mirrors the reference implementation's defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxExcerptBytes:      24_000,
		HeadBytes:            12_000,
		TailBytes:            12_000,
		MaxLineCount:         0,
		BinaryDetectionBytes: 2_048,
	}
}

type ArtifactRef struct {
	Path    string `json:"path"`
	AbsPath string `json:"abs_path"`
	Exists  bool   `json:"exists"`
	Size    *int64 `json:"size_bytes"`
	SHA256  string `json:"sha256,omitempty"`
}

type TextExcerpt struct {
	Head      string `json:"head"`
	Tail      string `json:"tail"`
	Truncated bool   `json:"truncated"`
}

type Result struct {
	Artifact ArtifactRef
	Excerpt  *TextExcerpt
	Error    string
}

func normalizePolicy(p Policy) (maxExcerpt, head, tail int) {
	maxExcerpt = p.MaxExcerptBytes
	if maxExcerpt < 1 {
		maxExcerpt = 1
	}
	head = p.HeadBytes
	if head < 0 {
		head = 0
	}
	tail = p.TailBytes
	if tail < 0 {
		tail = 0
	}
	if head+tail == 0 {
		head = min(maxExcerpt, 1)
		tail = 0
	}
	if head+tail > maxExcerpt {
		head = min(head, maxExcerpt)
		tail = min(tail, maxExcerpt-head)
	}
	return
}

func applyLineLimit(text string, maxLines int, fromHead bool) string {
	if maxLines <= 0 {
		return text
	}
	lines := splitKeepEnds(text)
	if len(lines) <= maxLines {
		return text
	}
	var selected []string
	if fromHead {
		selected = lines[:maxLines]
	} else {
		selected = lines[len(lines)-maxLines:]
	}
	return strings.Join(selected, "")
}

func splitKeepEnds(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func looksBinary(path string, sampleBytes int) (bool, string) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Sprintf("binary_detection_failed: %v", err)
	}
	defer f.Close()

	if sampleBytes < 1 {
		sampleBytes = 1
	}
	buf := make([]byte, sampleBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Sprintf("binary_detection_failed: %v", err)
	}
	sample := buf[:n]
	if len(sample) == 0 {
		return false, ""
	}
	for _, b := range sample {
		if b == 0 {
			return true, ""
		}
	}
	controls := 0
	for _, b := range sample {
		if b < 9 || (b > 13 && b < 32) {
			controls++
		}
	}
	ratio := float64(controls) / float64(len(sample))
	return ratio > 0.30, ""
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readExcerpt(path string, size int64, p Policy) (*TextExcerpt, string) {
	maxExcerpt, head, tail := normalizePolicy(p)

	if size <= int64(maxExcerpt) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Sprintf("read_failed: %v", err)
		}
		decoded := applyLineLimit(string(raw), p.MaxLineCount, true)
		return &TextExcerpt{Head: decoded, Tail: "", Truncated: false}, ""
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Sprintf("read_failed: %v", err)
	}
	defer f.Close()

	var headRaw, tailRaw []byte
	if head > 0 {
		buf := make([]byte, head)
		n, _ := io.ReadFull(f, buf)
		headRaw = buf[:n]
	}
	if tail > 0 {
		offset := size - int64(tail)
		if offset < 0 {
			offset = 0
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Sprintf("read_failed: %v", err)
		}
		buf := make([]byte, tail)
		n, _ := io.ReadFull(f, buf)
		tailRaw = buf[:n]
	}

	headText := applyLineLimit(string(headRaw), p.MaxLineCount, true)
	tailText := applyLineLimit(string(tailRaw), p.MaxLineCount, false)
	return &TextExcerpt{Head: headText, Tail: tailText, Truncated: true}, ""
}

func safeRelPath(path, root string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// TextArtifact captures path under policy, rooted (for relative-path
// display purposes) at root. It never returns an error for a missing
// or unreadable file; failures are reported in Result.Error while
// Result.Artifact still carries whatever metadata was obtainable.
func TextArtifact(path, root string, p Policy) Result {
	relPath := safeRelPath(path, root)
	absPath, _ := filepath.Abs(path)

	info, statErr := os.Stat(path)
	exists := statErr == nil

	var errs []string
	artifact := ArtifactRef{Path: relPath, AbsPath: absPath, Exists: exists}

	if !exists {
		return Result{Artifact: artifact}
	}

	size := info.Size()
	artifact.Size = &size

	if digest, err := sha256File(path); err != nil {
		errs = append(errs, fmt.Sprintf("hash_failed: %v", err))
	} else {
		artifact.SHA256 = digest
	}

	binary, binErr := looksBinary(path, p.BinaryDetectionBytes)
	if binErr != "" {
		errs = append(errs, binErr)
	}
	if binary {
		errs = append(errs, "binary_artifact_detected")
		return Result{Artifact: artifact, Error: strings.Join(errs, "; ")}
	}

	excerpt, excErr := readExcerpt(path, size, p)
	if excErr != "" {
		errs = append(errs, excErr)
	}
	return Result{Artifact: artifact, Excerpt: excerpt, Error: strings.Join(errs, "; ")}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
