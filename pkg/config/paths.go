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
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the qfleet data directory.
const DataDirEnv = "QFLEET_DATA_DIR"

// GetDataDir returns the qfleet data directory: $QFLEET_DATA_DIR when set,
// otherwise ~/.qfleet. Tilde and relative paths are expanded to absolute.
//
// It reads the environment directly rather than through viper because it is
// needed to locate the config file itself.
func GetDataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".qfleet"
	}
	return filepath.Join(homeDir, ".qfleet")
}

// DefaultSQLitePath is the database used when no path is configured.
func DefaultSQLitePath() string {
	return filepath.Join(GetDataDir(), "qfleet.db")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
