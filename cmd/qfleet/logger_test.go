// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		level   zap.AtomicLevel
		wantErr bool
	}{
		{name: "default level", cfg: config.LoggingConfig{}, level: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{name: "debug", cfg: config.LoggingConfig{Level: "debug"}, level: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{name: "text format", cfg: config.LoggingConfig{Level: "warn", Format: "text"}, level: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, level, err := newLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level.Level()))
			assert.False(t, logger.Core().Enabled(tt.level.Level()-1))

			level.SetLevel(zap.ErrorLevel)
			assert.False(t, logger.Core().Enabled(zap.WarnLevel))
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qfleet.log")
	logger, _, err := newLogger(config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)

	logger.Info("written to file", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
