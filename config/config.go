// Package config loads the YAML settings shared by the store tools.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	bplus "PagedKV/bplustree"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file. Zero fields fall back to the store defaults.
type Config struct {
	Path            string `yaml:"path"`
	PageSize        int    `yaml:"page_size"`
	KeySize         int    `yaml:"key_size"`
	ValueSize       int    `yaml:"value_size"`
	RecordsPerPage  int    `yaml:"records_per_page"`
	CachePages      int    `yaml:"cache_pages"`
	LookupCacheSize int    `yaml:"lookup_cache_size"`
	LogLevel        string `yaml:"log_level"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Path:            DefaultPath(),
		CachePages:      bplus.DefaultCachePages,
		LookupCacheSize: 1024,
		LogLevel:        "info",
	}
}

// DefaultPath is <temp dir>/<executable name>.dat.
func DefaultPath() string {
	name := "pagedkv"
	if exe, err := os.Executable(); err == nil {
		name = strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	}
	return filepath.Join(os.TempDir(), name+".dat")
}

// Load reads a YAML file on top of Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath()
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// TreeOptions converts the config into bplus.Options.
func (c Config) TreeOptions(logger *zap.Logger) bplus.Options {
	return bplus.Options{
		PageSize:        c.PageSize,
		KeySize:         c.KeySize,
		ValueSize:       c.ValueSize,
		RecordsPerPage:  c.RecordsPerPage,
		CachePages:      c.CachePages,
		LookupCacheSize: c.LookupCacheSize,
		Logger:          logger,
	}
}

// Logger builds a console logger at the configured level. "debug" also
// turns on the development encoder with caller info.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Encoding = "console"
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
