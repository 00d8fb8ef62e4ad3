// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads deployment settings for the tripkb binaries.
//
// Settings come from a YAML file overlaid by environment variables. Each
// variable is named TRIPKB_ followed by the upper-cased key path, with a
// double underscore between nesting levels:
//
//	TRIPKB_DATABASE              -> database
//	TRIPKB_AI__EMBEDDING_MODEL   -> ai.embedding_model
//	TRIPKB_INGESTION__POOL_SIZE  -> ingestion.pool_size
//
// Keys missing from both sources keep their defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/chunking"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/ingestion"
	"github.com/poiesic/tripkb/retry"
)

// DateLayout is the format of trip dates in the groups section.
const DateLayout = "2006-01-02"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete deployment configuration.
type Config struct {
	// Database is the badger directory.
	Database string `koanf:"database"`

	// BotID is the bot's own sender identifier.
	BotID string `koanf:"bot_id"`

	AI        ai.Config       `koanf:"ai"`
	Ingestion IngestionConfig `koanf:"ingestion"`
	Reembed   ReembedConfig   `koanf:"reembed"`
	Groups    []GroupConfig   `koanf:"groups"`
}

// IngestionConfig controls the scheduler.
type IngestionConfig struct {
	Interval  time.Duration  `koanf:"interval"`
	PoolSize  int            `koanf:"pool_size"`
	Watermark string         `koanf:"watermark"` // "now" or "last_message"
	Chunking  ChunkingConfig `koanf:"chunking"`
	Retry     RetryConfig    `koanf:"retry"`
}

// ChunkingConfig mirrors chunking.Options.
type ChunkingConfig struct {
	GapHours float64 `koanf:"gap_hours"`
	MinSize  int     `koanf:"min_size"`
	MaxSize  int     `koanf:"max_size"`
	Overlap  int     `koanf:"overlap"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Multiplier  float64       `koanf:"multiplier"`
	Jitter      float64       `koanf:"jitter"`
}

// ReembedConfig controls the reembed command.
type ReembedConfig struct {
	BatchSize      int `koanf:"batch_size"`
	ReportInterval int `koanf:"report_interval"`
}

// GroupConfig declares a managed group.
type GroupConfig struct {
	ID            string   `koanf:"id"`
	Name          string   `koanf:"name"`
	Managed       *bool    `koanf:"managed"` // Defaults to true
	CommunityKeys []string `koanf:"community_keys"`
	Destination   string   `koanf:"destination"`
	TripStart     string   `koanf:"trip_start"`
	TripEnd       string   `koanf:"trip_end"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	opts := chunking.DefaultOptions()
	policy := retry.DefaultPolicy()
	return &Config{
		Database: "tripkb.db",
		AI:       *ai.DefaultConfig(),
		Ingestion: IngestionConfig{
			Interval:  30 * time.Minute,
			PoolSize:  4,
			Watermark: ingestion.WatermarkNow.String(),
			Chunking: ChunkingConfig{
				GapHours: opts.GapHours,
				MinSize:  opts.MinSize,
				MaxSize:  opts.MaxSize,
				Overlap:  opts.Overlap,
			},
			Retry: RetryConfig{
				MaxAttempts: policy.MaxAttempts,
				BaseDelay:   policy.BaseDelay,
				MaxDelay:    policy.MaxDelay,
				Multiplier:  policy.Multiplier,
				Jitter:      policy.Jitter,
			},
		},
		Reembed: ReembedConfig{
			BatchSize:      100,
			ReportInterval: 100,
		},
	}
}

// ChunkingOptions returns the segmentation settings.
func (c *IngestionConfig) ChunkingOptions() chunking.Options {
	return chunking.Options{
		GapHours: c.Chunking.GapHours,
		MinSize:  c.Chunking.MinSize,
		MaxSize:  c.Chunking.MaxSize,
		Overlap:  c.Chunking.Overlap,
	}
}

// RetryPolicy returns the collaborator retry policy.
func (c *IngestionConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Multiplier:  c.Retry.Multiplier,
		Jitter:      c.Retry.Jitter,
	}
}

// WatermarkPolicy parses the watermark setting.
func (c *IngestionConfig) WatermarkPolicy() (ingestion.WatermarkPolicy, error) {
	return ingestion.ParseWatermarkPolicy(c.Watermark)
}

// Group converts the declaration into a core.Group. The watermark is left
// zero so saving it never rewinds ingestion.
func (g *GroupConfig) Group() (*core.Group, error) {
	group := &core.Group{
		ID:            g.ID,
		Name:          g.Name,
		Managed:       g.Managed == nil || *g.Managed,
		CommunityKeys: g.CommunityKeys,
		Destination:   g.Destination,
	}
	var err error
	if group.TripStart, err = parseDate(g.TripStart); err != nil {
		return nil, fmt.Errorf("group %s trip_start: %w", g.ID, err)
	}
	if group.TripEnd, err = parseDate(g.TripEnd); err != nil {
		return nil, fmt.Errorf("group %s trip_end: %w", g.ID, err)
	}
	return group, nil
}

// CoreGroups converts every declared group.
func (c *Config) CoreGroups() ([]*core.Group, error) {
	groups := make([]*core.Group, 0, len(c.Groups))
	for i := range c.Groups {
		group, err := c.Groups[i].Group()
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if c.Ingestion.Interval <= 0 {
		return fmt.Errorf("%w: ingestion.interval must be positive", ErrInvalidConfig)
	}
	if c.Ingestion.PoolSize < 1 {
		return fmt.Errorf("%w: ingestion.pool_size must be at least 1", ErrInvalidConfig)
	}
	if _, err := c.Ingestion.WatermarkPolicy(); err != nil {
		return fmt.Errorf("%w: ingestion.watermark: %w", ErrInvalidConfig, err)
	}
	if ch := c.Ingestion.Chunking; ch.GapHours <= 0 || ch.MinSize < 1 || ch.Overlap < 0 {
		return fmt.Errorf("%w: ingestion.chunking needs positive gap_hours and min_size and a non-negative overlap", ErrInvalidConfig)
	}
	if err := c.Ingestion.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: ingestion.retry: %w", ErrInvalidConfig, err)
	}
	if c.Reembed.BatchSize < 1 {
		return fmt.Errorf("%w: reembed.batch_size must be at least 1", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Groups))
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.ID == "" {
			return fmt.Errorf("%w: groups[%d] has no id", ErrInvalidConfig, i)
		}
		if seen[g.ID] {
			return fmt.Errorf("%w: group %s declared twice", ErrInvalidConfig, g.ID)
		}
		seen[g.ID] = true
		if _, err := g.Group(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}
