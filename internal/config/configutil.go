package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadFile reads a json5 configuration file and its local override.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
func ReadFile[T any](name string) (T, error) {
	var out T
	err := ReadFileInto(name, &out)
	return out, err
}

// ReadFileInto is ReadFile, but it decodes over the values already in out. A
// key missing from both files keeps its value, a key that is present wins
// even when it holds a zero value. The local file is decoded last.
func ReadFileInto[T any](name string, out *T) error {
	found := false
	prefix, ext := splitExt(filepath.Base(name))
	localPath := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))

	for _, path := range []string{name, localPath} {
		contents, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if len(contents) == 0 {
			continue
		}
		err = json5.Unmarshal(contents, out)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if path == localPath {
			slog.Info("merging config with local overrides", "local", localPath)
		}
		found = true
	}

	if !found {
		return os.ErrNotExist
	}
	return nil
}

// ReadRecursively is ReadFile, but it walks up from the working directory
// until it finds a file with the given name.
func ReadRecursively[T any](name string) (T, error) {
	var out T
	err := ReadRecursivelyInto(name, &out)
	return out, err
}

// ReadRecursivelyInto is ReadFileInto applied to the first file found by
// ReadRecursively.
func ReadRecursivelyInto[T any](name string, out *T) error {
	root, err := filepath.Abs("/")
	if err != nil {
		return err
	}
	current, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		err := ReadFileInto(filepath.Join(current, name), out)
		if err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		if current == root {
			return os.ErrNotExist
		}
		current = filepath.Dir(current)
	}
}
