package domain

import (
	"time"

	"gorm.io/datatypes"
)

// IngestedChunk records which chunk ids a source produced on its last
// successful ingestion run.
type IngestedChunk struct {
	SourceKey   string         `gorm:"type:text;primaryKey" json:"source_key"`
	ChunkID     string         `gorm:"type:text;primaryKey" json:"chunk_id"`
	ContentHash string         `gorm:"type:text;not null" json:"content_hash"`
	RunID       string         `gorm:"type:text;not null;index" json:"run_id"`
	Metadata    datatypes.JSON `gorm:"not null" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (IngestedChunk) TableName() string { return "ingested_chunks" }
