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

// Package tripkb ties the knowledge store, the AI collaborators and the
// ingestion, retrieval and maintenance services together behind one handle.
package tripkb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/tripkb/ai"
	"github.com/poiesic/tripkb/ai/openai"
	"github.com/poiesic/tripkb/core"
	"github.com/poiesic/tripkb/ingestion"
	"github.com/poiesic/tripkb/reembed"
	"github.com/poiesic/tripkb/search"
	"github.com/poiesic/tripkb/storage"
	"github.com/poiesic/tripkb/storage/badger"
)

// importBatchSize is how many messages ImportMessages stores per write.
const importBatchSize = 500

// Database is an open knowledge base.
type Database struct {
	repos    *badger.Repositories
	provider ai.AIProvider
	logger   *slog.Logger
}

// Option configures a Database.
type Option func(*options)

type options struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the collaborator endpoints and models.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithInMemory keeps everything in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens or creates the knowledge base at path.
func Open(path string, opts ...Option) (*Database, error) {
	o := &options{aiConfig: ai.DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	backend, err := badger.OpenBackend(path, o.inMemory)
	if err != nil {
		return nil, err
	}
	repos, err := badger.NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		if provider, err = openai.NewProvider(o.aiConfig); err != nil {
			repos.Close()
			return nil, err
		}
	}

	return &Database{
		repos:    repos,
		provider: provider,
		logger:   o.logger,
	}, nil
}

// Close closes the provider, the repositories and the backend.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Messages() storage.MessageRepository {
	return db.repos.Messages
}

func (db *Database) Groups() storage.GroupRepository {
	return db.repos.Groups
}

func (db *Database) Topics() storage.TopicRepository {
	return db.repos.Topics
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewScheduler creates an ingestion scheduler over this database.
// The caller must Release it.
func (db *Database) NewScheduler(opts ...ingestion.Option) (*ingestion.Scheduler, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)
	return ingestion.NewScheduler(db.repos.Messages, db.repos.Groups, db.repos.Topics, db.provider, opts...)
}

// NewRetriever creates a retriever that embeds text queries with the
// database's embedder.
func (db *Database) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	opts = append([]search.Option{
		search.WithLogger(db.logger),
		search.WithEmbedder(db.provider.Embedder()),
	}, opts...)
	return search.NewRetriever(db.repos.Topics, db.repos.Groups, opts...)
}

// NewReembedder creates a re-embedding pass over every stored topic.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.repos.Topics, db.provider.Embedder(), config, progress, db.logger)
}

// SaveGroups registers groups. Stored watermarks are never rewound.
func (db *Database) SaveGroups(ctx context.Context, groups ...*core.Group) error {
	return db.repos.Groups.SaveGroups(ctx, groups...)
}

// MessageLine is one line of a message import file.
type MessageLine struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// ImportResult counts what ImportMessages did.
type ImportResult struct {
	Read   int // Lines decoded
	Stored int // New messages; already stored ones are skipped
}

// ImportMessages reads JSON lines of messages from r and stores them.
// Blank lines are ignored. The first malformed line stops the import;
// messages before it stay stored.
func (db *Database) ImportMessages(ctx context.Context, r io.Reader) (ImportResult, error) {
	var result ImportResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	batch := make([]*core.Message, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := db.repos.Messages.AddMessages(ctx, batch...)
		if err != nil {
			return err
		}
		result.Stored += n
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var m MessageLine
		if err := json.Unmarshal(raw, &m); err != nil {
			flushErr := flush()
			return result, errors.Join(fmt.Errorf("line %d: %w", line, err), flushErr)
		}
		msg := &core.Message{
			ID:        m.ID,
			GroupID:   m.GroupID,
			SenderID:  m.SenderID,
			Timestamp: m.Timestamp.UTC(),
			Text:      m.Text,
		}
		if err := core.ValidateMessage(msg); err != nil {
			flushErr := flush()
			return result, errors.Join(fmt.Errorf("line %d: %w", line, err), flushErr)
		}
		result.Read++
		batch = append(batch, msg)
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	if err := flush(); err != nil {
		return result, err
	}

	db.logger.Info("messages imported", "read", result.Read, "stored", result.Stored)
	return result, nil
}
