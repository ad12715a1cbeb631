package source

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// findDecoder resolves a decoder binary. A name with a path separator is used
// as is, otherwise PATH is searched first and then the bin directory of every
// dir.
func findDecoder(name string, dirs ...string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return exec.LookPath(name)
	}

	binPath, err := exec.LookPath(name)
	if err == nil {
		return binPath, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", err
	}

	exeName := name
	if runtime.GOOS == "windows" && filepath.Ext(exeName) == "" {
		exeName += ".exe"
	}

	for _, dir := range dirs {
		binPath = filepath.Join(dir, "bin", exeName)
		if stat, err := os.Stat(binPath); err != nil || stat.IsDir() {
			continue // continue to next directory
		}
		return binPath, nil
	}

	return "", fmt.Errorf("failed to find binary '%s': %w", name, exec.ErrNotFound)
}

// decoderDirs returns the directory of the executable and the working
// directory, the places bundled decoders are installed to.
func decoderDirs() []string {
	var dirs []string
	if exePath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exePath))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}
