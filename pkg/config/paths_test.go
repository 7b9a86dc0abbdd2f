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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDataDir_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)
	assert.Equal(t, dir, GetDataDir())
	assert.Equal(t, filepath.Join(dir, "qfleet.db"), DefaultSQLitePath())
}

func TestGetDataDir_Tilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv(DataDirEnv, "~/custom-qfleet")
	assert.Equal(t, filepath.Join(home, "custom-qfleet"), GetDataDir())
}

func TestGetDataDir_Relative(t *testing.T) {
	t.Setenv(DataDirEnv, "relative/dir")
	got := GetDataDir()
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "dir", filepath.Base(got))
}

func TestGetDataDir_Default(t *testing.T) {
	t.Setenv(DataDirEnv, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".qfleet"), GetDataDir())
}
