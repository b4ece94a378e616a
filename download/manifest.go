/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fluxcd/pkg/lockedfile"
	"github.com/go-logr/logr"
)

const (
	// ManifestFileName is the name of the checksum manifest kept in every
	// directory that received a download.
	ManifestFileName = "checksums.json"

	// LockSuffix is appended to the manifest path to form its lock file.
	LockSuffix = ".lock"
)

// IsManifestFile reports whether name is a checksum manifest or its lock.
func IsManifestFile(name string) bool {
	return name == ManifestFileName || name == ManifestFileName+LockSuffix
}

type manifestData struct {
	SHA256 map[string]string `json:"sha256"`
}

// Manifest records the verified SHA256 of the files in a directory.
// Updates are serialised with a lock file next to the manifest.
type Manifest struct {
	path string
	log  logr.Logger
}

// OpenManifest returns the manifest of the given directory. The manifest
// file is only created on the first Set.
func OpenManifest(dir string, log logr.Logger) *Manifest {
	return &Manifest{
		path: filepath.Join(dir, ManifestFileName),
		log:  log,
	}
}

// Path returns the location of the manifest file.
func (m *Manifest) Path() string {
	return m.path
}

// Entries returns the recorded checksums by file name.
func (m *Manifest) Entries() (map[string]string, error) {
	data, err := m.read()
	if err != nil {
		return nil, err
	}
	return data.SHA256, nil
}

// Set records the checksum of the named file.
func (m *Manifest) Set(name, sum string) error {
	return m.update(func(entries map[string]string) {
		entries[name] = sum
	})
}

// Prune drops the entries of files for which keep returns false and
// returns their names. A manifest left without entries is deleted
// together with its lock file.
func (m *Manifest) Prune(keep func(name string) bool) ([]string, error) {
	if _, err := os.Lstat(m.path); errors.Is(err, os.ErrNotExist) {
		// A lock without a manifest is left over from an interrupted update.
		if err := os.Remove(m.path + LockSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, nil
	}

	var pruned []string
	err := m.update(func(entries map[string]string) {
		for name := range entries {
			if !keep(name) {
				pruned = append(pruned, name)
				delete(entries, name)
			}
		}
	})
	sort.Strings(pruned)
	return pruned, err
}

func (m *Manifest) update(fn func(entries map[string]string)) error {
	unlock, err := lockedfile.MutexAt(m.path + LockSuffix).Lock()
	if err != nil {
		return fmt.Errorf("failed to lock manifest: %w", err)
	}

	data, err := m.read()
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
			unlock()
			return err
		}
		m.log.Info("replacing unreadable checksum manifest", "path", m.path, "error", err.Error())
		data = manifestData{SHA256: map[string]string{}}
	}

	fn(data.SHA256)

	if len(data.SHA256) == 0 {
		err = os.Remove(m.path)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		unlock()
		if err == nil {
			_ = os.Remove(m.path + LockSuffix)
		}
		return err
	}

	defer unlock()
	return m.write(data)
}

func (m *Manifest) read() (manifestData, error) {
	data := manifestData{SHA256: map[string]string{}}
	b, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return data, err
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return data, err
	}
	if data.SHA256 == nil {
		data.SHA256 = map[string]string{}
	}
	return data, nil
}

// write replaces the manifest atomically.
func (m *Manifest) write(data manifestData) (err error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tf, err := os.CreateTemp(filepath.Split(m.path))
	if err != nil {
		return err
	}
	tfName := tf.Name()
	defer func() {
		if err != nil {
			os.Remove(tfName)
		}
	}()
	if _, err = tf.Write(append(b, '\n')); err != nil {
		tf.Close()
		return err
	}
	if err = tf.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tfName, 0o644); err != nil {
		return err
	}
	return os.Rename(tfName, m.path)
}
