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
package learning

import (
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/types"
)

// Config holds the learning hyperparameters of one Learner.
type Config struct {
	LearningRate       float64
	DiscountFactor     float64
	InitialExploration float64
	MinExploration     float64
	ExplorationDecay   float64
	// InitialQValue is the estimate used for actions never tried in a state.
	InitialQValue float64

	// FlushEvery is the number of updates accumulated before a flush.
	FlushEvery         int
	MaxStepsPerEpisode int

	// StoreTimeout bounds every individual store call.
	StoreTimeout    time.Duration
	FlushMaxRetries int
	// FlushInterval retries pending writes on a timer once the worker is
	// started. Zero disables the timer.
	FlushInterval time.Duration
}

// DefaultConfig returns the stock hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:       0.1,
		DiscountFactor:     0.95,
		InitialExploration: 0.3,
		MinExploration:     0.01,
		ExplorationDecay:   0.995,
		FlushEvery:         10,
		MaxStepsPerEpisode: 100,
		StoreTimeout:       2 * time.Second,
		FlushMaxRetries:    3,
		FlushInterval:      30 * time.Second,
	}
}

// ConfigFrom converts the loaded configuration section.
func ConfigFrom(c config.LearningConfig) Config {
	cfg := Config{
		LearningRate:       c.LearningRate,
		DiscountFactor:     c.DiscountFactor,
		InitialExploration: c.InitialExploration,
		MinExploration:     c.MinExploration,
		ExplorationDecay:   c.ExplorationDecay,
		InitialQValue:      c.InitialQValue,
		FlushEvery:         c.FlushEvery,
		MaxStepsPerEpisode: c.MaxStepsPerEpisode,
		StoreTimeout:       c.StoreTimeout,
		FlushMaxRetries:    c.FlushMaxRetries,
		FlushInterval:      DefaultConfig().FlushInterval,
	}
	return cfg
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("learning rate must be in (0, 1], got %v", c.LearningRate))
	}
	if c.DiscountFactor < 0 || c.DiscountFactor > 1 {
		errs = append(errs, fmt.Errorf("discount factor must be in [0, 1], got %v", c.DiscountFactor))
	}
	if c.MinExploration <= 0 || c.MinExploration > c.InitialExploration {
		errs = append(errs, fmt.Errorf("minimum exploration must be in (0, %v], got %v", c.InitialExploration, c.MinExploration))
	}
	if c.InitialExploration > 1 {
		errs = append(errs, fmt.Errorf("initial exploration must be at most 1, got %v", c.InitialExploration))
	}
	if c.ExplorationDecay <= 0 || c.ExplorationDecay >= 1 {
		errs = append(errs, fmt.Errorf("exploration decay must be in (0, 1), got %v", c.ExplorationDecay))
	}
	if c.FlushEvery <= 0 {
		errs = append(errs, fmt.Errorf("flush frequency must be positive, got %d", c.FlushEvery))
	}
	if c.MaxStepsPerEpisode <= 0 {
		errs = append(errs, fmt.Errorf("max steps per episode must be positive, got %d", c.MaxStepsPerEpisode))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive, got %v", c.StoreTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) maxRetries() uint {
	if c.FlushMaxRetries <= 0 {
		return 1
	}
	return uint(c.FlushMaxRetries)
}
