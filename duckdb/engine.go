// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package duckdb provides a DuckDB-backed aggregation backend for the
// conditional formatting engine. Range statistics over large ranges are
// computed by an in-memory DuckDB database instead of a Go scan.
package duckdb

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// Engine wraps an in-memory DuckDB database used to aggregate range values.
type Engine struct {
	db          *sql.DB
	mu          sync.RWMutex
	initialized bool
}

// Config holds configuration options for the DuckDB engine.
type Config struct {
	// MemoryLimit sets the maximum memory DuckDB can use (e.g., "4GB")
	MemoryLimit string
	// Threads sets the number of threads DuckDB should use (0 = auto)
	Threads int
}

// DefaultConfig returns the default configuration for the DuckDB engine.
func DefaultConfig() *Config {
	return &Config{
		MemoryLimit: "1GB",
		Threads:     0, // auto-detect
	}
}

// NewEngine creates a new DuckDB engine with default configuration.
func NewEngine() (*Engine, error) {
	return NewEngineWithConfig(DefaultConfig())
}

// NewEngineWithConfig creates a new DuckDB engine with custom configuration.
func NewEngineWithConfig(cfg *Config) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	e := &Engine{db: db}
	if err := e.applyConfig(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply config: %w", err)
	}

	e.initialized = true
	return e, nil
}

// applyConfig applies configuration settings to the DuckDB database.
func (e *Engine) applyConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if cfg.MemoryLimit != "" {
		if _, err := e.db.Exec(fmt.Sprintf("SET memory_limit = '%s'", cfg.MemoryLimit)); err != nil {
			return fmt.Errorf("failed to set memory_limit: %w", err)
		}
	}

	if cfg.Threads > 0 {
		if _, err := e.db.Exec(fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}

	return nil
}

// Close closes the DuckDB database connection and releases resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initialized = false
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// IsInitialized returns whether the engine has been initialized.
func (e *Engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}
