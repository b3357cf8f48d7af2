// Package backup provides tar.gz-based backup and restore of the AIMS
// database and configuration file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HerbHall/aims/internal/store"
	"github.com/HerbHall/aims/internal/version"
)

// ManifestName is the archive entry describing the backup contents.
const ManifestName = "manifest.yaml"

// maxEntrySize bounds a single archive entry on restore.
const maxEntrySize = 4 << 30

// ErrExists is returned by Restore when a target file exists and force is
// not set.
var ErrExists = errors.New("target file exists")

// Manifest is written first into every archive.
type Manifest struct {
	Version   string            `yaml:"version"`
	CreatedAt time.Time         `yaml:"created_at"`
	Database  string            `yaml:"database"`
	Config    string            `yaml:"config,omitempty"`
	Checksums map[string]string `yaml:"checksums"` // archive name -> hex SHA-256
}

// Backup creates a tar.gz archive containing the SQLite database and an
// optional config file. The database WAL is checkpointed first so the
// main file is self-contained.
func Backup(ctx context.Context, dbPath, configPath, outputPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %w", err)
	}
	if err := checkpointWAL(ctx, dbPath); err != nil {
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	files := map[string]string{filepath.Base(dbPath): dbPath}
	m := Manifest{
		Version:   version.Short(),
		CreatedAt: time.Now().UTC(),
		Database:  filepath.Base(dbPath),
		Checksums: make(map[string]string),
	}
	if configPath != "" {
		// A missing config file is skipped.
		if _, err := os.Stat(configPath); err == nil {
			m.Config = filepath.Base(configPath)
			files[m.Config] = configPath
		}
	}
	for name, path := range files {
		sum, err := fileSHA256(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		m.Checksums[name] = sum
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     ManifestName,
		Mode:     0o644,
		Size:     int64(len(raw)),
		ModTime:  m.CreatedAt,
	}); err != nil {
		return err
	}
	if _, err := tw.Write(raw); err != nil {
		return err
	}

	if err := addFileToTar(tw, dbPath, m.Database); err != nil {
		return fmt.Errorf("adding database to archive: %w", err)
	}
	if m.Config != "" {
		if err := addFileToTar(tw, configPath, m.Config); err != nil {
			return fmt.Errorf("adding config to archive: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return outFile.Close()
}

// Restore extracts an archive written by Backup into dataDir. Every file
// is verified against the manifest checksum before it replaces anything.
// Existing files are only overwritten when force is set. Stale WAL and
// shared-memory files next to the restored database are removed.
func Restore(ctx context.Context, archivePath, dataDir string, force bool) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	defer gr.Close()
	tr := tar.NewReader(gr)

	var m *Manifest
	staged := make(map[string]string) // archive name -> temp path
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if name != hdr.Name {
			return nil, fmt.Errorf("archive entry %q: nested paths are not allowed", hdr.Name)
		}

		if name == ManifestName {
			m = &Manifest{}
			if err := yaml.NewDecoder(io.LimitReader(tr, 1<<20)).Decode(m); err != nil {
				return nil, fmt.Errorf("decode manifest: %w", err)
			}
			continue
		}
		if m == nil {
			return nil, fmt.Errorf("archive entry %q precedes the manifest", name)
		}
		want, ok := m.Checksums[name]
		if !ok {
			return nil, fmt.Errorf("archive entry %q is not listed in the manifest", name)
		}

		tmp, got, err := stage(tr, dataDir, name)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", name, err)
		}
		staged[name] = tmp
		if got != want {
			return nil, fmt.Errorf("checksum mismatch for %s", name)
		}
	}

	if m == nil {
		return nil, errors.New("archive has no manifest")
	}
	for name := range m.Checksums {
		if _, ok := staged[name]; !ok {
			return nil, fmt.Errorf("archive is missing %s", name)
		}
	}

	if !force {
		for name := range staged {
			if _, err := os.Stat(filepath.Join(dataDir, name)); err == nil {
				return nil, fmt.Errorf("%w: %s", ErrExists, filepath.Join(dataDir, name))
			}
		}
	}

	for name, tmp := range staged {
		target := filepath.Join(dataDir, name)
		if err := os.Rename(tmp, target); err != nil {
			return nil, fmt.Errorf("install %s: %w", name, err)
		}
		delete(staged, name)
	}
	dbTarget := filepath.Join(dataDir, m.Database)
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbTarget + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale %s: %w", suffix, err)
		}
	}
	return m, nil
}

// stage copies one entry into a temp file in dir and returns its path and
// hex SHA-256.
func stage(r io.Reader, dir, name string) (string, string, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".restore-*")
	if err != nil {
		return "", "", err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, maxEntrySize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxEntrySize {
		err = errors.New("entry too large")
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// checkpointWAL opens the database, runs a TRUNCATE checkpoint to flush the
// WAL, and closes the connection.
func checkpointWAL(ctx context.Context, dbPath string) error {
	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Checkpoint(ctx)
}

func fileSHA256(path string) (string, error) {
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

// addFileToTar adds a single file to the tar archive under the given name.
func addFileToTar(tw *tar.Writer, filePath, archiveName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}
