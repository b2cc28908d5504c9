// Package annotations persists reviewer comments attached to a recording,
// a frame and optionally one entity.
package annotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/OCAP2/inspector/internal/cache"
)

// DefaultBatchSize is the number of pending comments that triggers a flush.
const DefaultBatchSize = 100

var (
	ErrEmptyText     = errors.New("comment text is empty")
	ErrNoRecording   = errors.New("comment has no recording")
	ErrUnknownEntity = errors.New("unknown entity id")
)

// Comment is a note on a frame. Entities are stored by the id their client
// gave them, since merged ids are only stable for one loaded session.
// EntityID 0 means the comment is about the whole frame.
type Comment struct {
	ID        string         `json:"id" gorm:"primarykey;size:36"`
	CreatedAt time.Time      `json:"createdAt"`
	Recording string         `json:"recording" gorm:"size:255;index:idx_comment_recording_frame,priority:1"`
	Frame     uint           `json:"frame" gorm:"index:idx_comment_recording_frame,priority:2"`
	ClientID  uint32         `json:"clientId"`
	EntityID  uint64         `json:"entityId"`
	Author    string         `json:"author" gorm:"size:64"`
	Text      string         `json:"text"`
	Metadata  datatypes.JSON `json:"metadata"`
}

func (c *Comment) TableName() string {
	return "comments"
}

// Attach points the comment at the entity behind a merged id.
func (c *Comment) Attach(ids *cache.EntityIDs, mergedID uint64) error {
	key, ok := ids.Lookup(mergedID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, mergedID)
	}
	c.ClientID = key.ClientID
	c.EntityID = key.LocalID
	return nil
}

// Key returns the entity the comment is attached to.
func (c *Comment) Key() cache.EntityKey {
	return cache.EntityKey{ClientID: c.ClientID, LocalID: c.EntityID}
}

// MetadataMap converts a map to the JSON metadata column.
func MetadataMap(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// Models returns the tables the store needs migrated.
func Models() []any {
	return []any{&Comment{}}
}

// Store buffers new comments and writes them in batches.
type Store struct {
	db        *gorm.DB
	logger    zerolog.Logger
	batchSize int

	mu      sync.Mutex
	pending []Comment
}

func NewStore(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{
		db:        db,
		logger:    log,
		batchSize: DefaultBatchSize,
	}
}

// SetBatchSize changes the flush threshold. Values below 1 are ignored.
func (s *Store) SetBatchSize(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.batchSize = n
	s.mu.Unlock()
}

// Add validates and queues a comment, filling in its id and creation time.
// A full batch is flushed before Add returns.
func (s *Store) Add(ctx context.Context, c Comment) (Comment, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return Comment{}, ErrEmptyText
	}
	if c.Recording == "" {
		return Comment{}, ErrNoRecording
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if len(c.Metadata) == 0 {
		c.Metadata = datatypes.JSON("{}")
	}

	s.mu.Lock()
	s.pending = append(s.pending, c)
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Pending returns the number of comments not yet written.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes all pending comments. On failure they stay queued.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	items := s.pending
	s.pending = nil
	size := s.batchSize
	s.mu.Unlock()

	if len(items) == 0 {
		return nil
	}

	start := time.Now()
	if err := s.db.WithContext(ctx).CreateInBatches(items, size).Error; err != nil {
		s.mu.Lock()
		s.pending = append(items, s.pending...)
		s.mu.Unlock()
		return fmt.Errorf("write %d comments: %w", len(items), err)
	}
	s.logger.Debug().Int("count", len(items)).Dur("duration", time.Since(start)).Msg("Flushed comments")
	return nil
}

// List returns the recording's comments for frames from..to inclusive,
// ordered by frame and creation time.
func (s *Store) List(ctx context.Context, recording string, from, to uint) ([]Comment, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	var out []Comment
	err := s.db.WithContext(ctx).
		Where("recording = ? AND frame BETWEEN ? AND ?", recording, from, to).
		Order("frame, created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return out, nil
}

// ForEntity returns every comment on one entity of the recording.
func (s *Store) ForEntity(ctx context.Context, recording string, key cache.EntityKey) ([]Comment, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	var out []Comment
	err := s.db.WithContext(ctx).
		Where("recording = ? AND client_id = ? AND entity_id = ?", recording, key.ClientID, key.LocalID).
		Order("frame, created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list entity comments: %w", err)
	}
	return out, nil
}

// Delete removes a comment, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.mu.Unlock()
			return true, nil
		}
	}
	s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Comment{})
	if res.Error != nil {
		return false, fmt.Errorf("delete comment %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
