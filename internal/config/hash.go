package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest is the on-disk lock file recording the authorized config
// fingerprint. Written by `taskwarden config lock`, checked by
// `taskwarden config check` and at serve startup.
type ChecksumManifest struct {
	Version     int    `yaml:"version"`
	GeneratedAt string `yaml:"generated_at"`
	Hash        string `yaml:"hash"`
}

// Fingerprint computes the BLAKE3 hash of a file.
func Fingerprint(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// manifestPath derives the lock file path next to the config file.
func manifestPath(configPath string) string {
	dir := filepath.Dir(configPath)
	base := strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath))
	return filepath.Join(dir, "."+base+".checksum")
}

// Lock records the current config fingerprint, authorizing its content.
func Lock(configPath string) (string, error) {
	hash, err := Fingerprint(configPath)
	if err != nil {
		return "", err
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hash:        hash,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal checksum manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(configPath), data, 0o644); err != nil {
		return "", fmt.Errorf("write checksum manifest: %w", err)
	}
	return hash, nil
}

// Verify checks the config file against its recorded fingerprint.
// A missing manifest is reported through the second return value so
// callers can choose to warn rather than fail.
func Verify(configPath string) (locked bool, err error) {
	data, err := os.ReadFile(manifestPath(configPath))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read checksum manifest: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return true, fmt.Errorf("parse checksum manifest: %w", err)
	}

	actual, err := Fingerprint(configPath)
	if err != nil {
		return true, err
	}
	if actual != manifest.Hash {
		return true, fmt.Errorf("hash mismatch for %s: expected %s, got %s; run 'taskwarden config lock' to re-authorize",
			filepath.Base(configPath), manifest.Hash, actual)
	}
	return true, nil
}
