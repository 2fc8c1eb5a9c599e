// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package governance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the Loader.
const (
	EnvConfigPath      = "SCALPEL_CONFIG"
	EnvConfigHash      = "SCALPEL_CONFIG_HASH"
	EnvConfigSecret    = "SCALPEL_CONFIG_SECRET"
	EnvConfigSignature = "SCALPEL_CONFIG_SIGNATURE"
	EnvConfigProfile   = "SCALPEL_CONFIG_PROFILE"
)

const (
	// ConfigDirName is the per-project directory holding config files.
	ConfigDirName = ".code-scalpel"

	hashPrefix = "sha256:"
)

// Source describes where a loaded Config came from.
type Source struct {
	// Path is the resolved file path, even when the file was absent.
	Path string

	// FromFile is true when Path existed and was parsed.
	FromFile bool

	// Verified lists the integrity checks that passed.
	Verified []IntegrityKind

	// Overrides lists the environment variables that were applied.
	Overrides []string
}

// LookupFunc reads an environment variable. Matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Loader resolves, verifies, and parses governance config.
type Loader struct {
	path      string
	baseDir   string
	lookupEnv LookupFunc
	logger    *slog.Logger
	validate  *validator.Validate
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBaseDir sets the directory that contains .code-scalpel/.
// Default: the current working directory.
func WithBaseDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.baseDir = dir
	}
}

// WithLookupEnv replaces os.LookupEnv. Used by tests.
func WithLookupEnv(fn LookupFunc) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.lookupEnv = fn
		}
	}
}

// WithLogger sets the logger for warnings.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader.
//
// Inputs:
//
//	path - Explicit config path. Empty means "use profile/default lookup".
//	opts - Optional configuration.
//
// Outputs:
//
//	*Loader - Ready to Load.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{
		path:      path,
		baseDir:   ".",
		lookupEnv: os.LookupEnv,
		logger:    slog.Default(),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load assembles a Config.
//
// Description:
//
//	Resolves the config path (SCALPEL_CONFIG > explicit path > profile >
//	default), verifies the raw bytes against SCALPEL_CONFIG_HASH and the
//	HMAC pair when set, parses the governance section over the defaults,
//	applies per-field environment overrides, then validates.
//
// Outputs:
//
//	Config - The merged configuration.
//	Source - Where the values came from.
//	error  - IntegrityError (unwraps to ErrConfigIntegrity), ErrConfigRead,
//	         ErrConfigParse or ErrInvalidConfig. A missing file is not an error.
func (l *Loader) Load() (Config, Source, error) {
	cfg := DefaultConfig()
	src := Source{Path: l.ResolvePath()}

	data, err := os.ReadFile(src.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.logger.Warn("Governance config not found, using defaults",
			slog.String("path", src.Path))
	case err != nil:
		return Config{}, src, fmt.Errorf("%w: %s: %v", ErrConfigRead, src.Path, err)
	default:
		verified, err := l.verify(src.Path, data)
		if err != nil {
			return Config{}, src, err
		}
		src.Verified = verified

		if err := parseConfig(src.Path, data, &cfg); err != nil {
			return Config{}, src, err
		}
		src.FromFile = true
	}

	src.Overrides = applyEnvOverrides(&cfg, l.lookupEnv, l.logger)

	if err := l.validate.Struct(cfg); err != nil {
		return Config{}, src, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.BlastRadius.CriticalPaths == nil {
		cfg.BlastRadius.CriticalPaths = []string{}
	}
	return cfg, src, nil
}

// ResolvePath returns the config file path the next Load will read.
func (l *Loader) ResolvePath() string {
	if p, ok := l.env(EnvConfigPath); ok {
		return p
	}
	if l.path != "" {
		return l.path
	}
	if raw, ok := l.env(EnvConfigProfile); ok {
		if profile := SanitizeProfile(raw); profile != "" {
			return filepath.Join(l.baseDir, ConfigDirName, "config."+profile+".json")
		}
	}
	return filepath.Join(l.baseDir, ConfigDirName, "config.json")
}

// SanitizeProfile lowercases a profile name and drops every character
// outside [a-z0-9_-], so a profile can never escape the config directory.
func SanitizeProfile(profile string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(profile) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// env returns a non-empty environment value.
func (l *Loader) env(key string) (string, bool) {
	v, ok := l.lookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// verify runs the hash and HMAC checks configured in the environment.
func (l *Loader) verify(path string, data []byte) ([]IntegrityKind, error) {
	var verified []IntegrityKind

	if expected, ok := l.env(EnvConfigHash); ok {
		sum := sha256.Sum256(data)
		actual := hashPrefix + hex.EncodeToString(sum[:])
		if !strings.HasPrefix(expected, hashPrefix) {
			return nil, &IntegrityError{
				Kind:     IntegrityHash,
				Path:     path,
				Expected: expected,
				Actual:   actual,
				Detail:   "hash must have the form sha256:<hex>",
			}
		}
		if expected != actual {
			return nil, &IntegrityError{Kind: IntegrityHash, Path: path, Expected: expected, Actual: actual}
		}
		verified = append(verified, IntegrityHash)
	}

	secret, hasSecret := l.env(EnvConfigSecret)
	signature, hasSig := l.env(EnvConfigSignature)
	if hasSecret && hasSig {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(data)
		actual := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(actual)) {
			// The signature is not echoed back; it is a credential derivative.
			return nil, &IntegrityError{Kind: IntegrityHMAC, Path: path, Expected: "<signature>", Actual: "<mismatch>"}
		}
		verified = append(verified, IntegrityHMAC)
	}

	return verified, nil
}

// parseConfig decodes the governance envelope over cfg, so absent fields
// keep their defaults.
func parseConfig(path string, data []byte, cfg *Config) error {
	env := fileConfig{Governance: *cfg}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &env)
	default:
		err = json.Unmarshal(data, &env)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	*cfg = env.Governance
	return nil
}
