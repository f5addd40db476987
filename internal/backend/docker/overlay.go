package docker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PythonSelection records which Python base image was chosen for a
// run, written under the run directory (never into the source
// context) so it is auditable without mutating the target repo.
type PythonSelection struct {
	Requested string `json:"requested"`
	Resolved  string `json:"resolved_image"`
	Reason    string `json:"reason"`
}

// SelectPythonBase picks a base image tag for the requested Python
// version constraint, defaulting to the newest supported minor version
// when unset.
func SelectPythonBase(requested string) PythonSelection {
	if requested == "" {
		return PythonSelection{Requested: requested, Resolved: "python:3.12-slim", Reason: "no version requested, defaulting to newest supported"}
	}
	return PythonSelection{Requested: requested, Resolved: fmt.Sprintf("python:%s-slim", requested), Reason: "pinned to requested version"}
}

// WritePythonSelection persists the selection under runDir.
func WritePythonSelection(runDir string, sel PythonSelection) error {
	b, err := json.MarshalIndent(sel, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "python_selection.json"), b, 0o644)
}

// InstallOverlay is a set of extra install steps merged on top of the
// target's own dependency manifest, without mutating the target.
type InstallOverlay struct {
	AptPackages  []string `json:"apt_packages,omitempty"`
	PipPackages  []string `json:"pip_packages,omitempty"`
	PostInstall  []string `json:"post_install,omitempty"`
}

// MergeManifest writes overlay as install_manifest.json under runDir
// and returns its path. The overlay is written as given; it is not
// merged with any manifest the target declares.
func MergeManifest(runDir string, overlay InstallOverlay) (string, error) {
	path := filepath.Join(runDir, "install_manifest.json")
	b, err := json.MarshalIndent(overlay, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
