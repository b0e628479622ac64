package configutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LocalVariant returns the path of the untracked override file for name,
// config.json5 becomes config.local.json5.
func LocalVariant(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

func decode[T any](path string) (T, bool, error) {
	var out T
	contents, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(contents) == 0 {
		return out, false, nil
	}
	err = json5.Unmarshal(contents, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// ReadConfig reads the json5 file at name and merges <name>.local.<ext> over
// it, non-zero fields in the local file win. fs.ErrNotExist is returned when
// neither file exists.
func ReadConfig[T any](name string) (T, error) {
	out, found, err := decode[T](name)
	if err != nil {
		return out, err
	}

	localPath := LocalVariant(name)
	override, foundLocal, err := decode[T](localPath)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", localPath, err)
		}
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if !found && !foundLocal {
		return out, fs.ErrNotExist
	}
	return out, nil
}

// ReadRecursively is ReadConfig but walks from the working directory up to
// the filesystem root until a directory holds name. It returns the directory
// the config was found in so relative paths can be resolved against it.
func ReadRecursively[T any](name string) (T, string, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, "", err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, current, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return zero, "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return zero, "", fs.ErrNotExist
		}
		current = parent
	}
}
