/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging builds the zap loggers shared by every vecshm component.
//
// The process env `VECSHM_LOG_LEVEL` sets the initial level (debug, info,
// warn, error) and `VECSHM_DEBUG_MODE` switches to colored console output.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLogLevel  = "VECSHM_LOG_LEVEL"
	envDebugMode = "VECSHM_DEBUG_MODE"
)

// Config defines logger configuration.
type Config struct {
	Level       string
	Development bool
	OutputPaths []string
}

// DefaultConfig returns the configuration derived from the process env.
func DefaultConfig() Config {
	cfg := Config{
		Level:       "warn",
		OutputPaths: []string{"stderr"},
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Level = v
	}
	if os.Getenv(envDebugMode) != "" {
		cfg.Development = true
	}
	return cfg
}

// Merge returns DefaultConfig with level applied when set. Development is
// on when either development or VECSHM_DEBUG_MODE asks for it.
func Merge(level string, development bool) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = level
	}
	cfg.Development = cfg.Development || development
	return cfg
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	global *zap.Logger
)

func init() {
	l, err := New(DefaultConfig())
	if err != nil {
		l = zap.NewNop()
	}
	global = l
}

// New builds a logger. Production loggers write JSON, development loggers
// write colored console lines.
func New(cfg Config) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	level.SetLevel(lvl)

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapCfg := zap.Config{
		Level:             level,
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build()
}

// Init replaces the process logger. Components created afterwards use it.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	old := global
	global = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the process logger for one component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Or returns l, or a named process logger when l is nil.
func Or(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Named(name)
}

// Sync flushes the process logger.
func Sync() {
	_ = L().Sync()
}
