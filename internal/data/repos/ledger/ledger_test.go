package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/docchat-backend/internal/data/db"
	types "github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func row(key, id string) *types.IngestedChunk {
	now := time.Now().UTC()
	return &types.IngestedChunk{
		SourceKey:   key,
		ChunkID:     id,
		ContentHash: "h-" + id,
		RunID:       "run-1",
		Metadata:    datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestIngestedChunkRepo(t *testing.T) {
	gdb := testDB(t)
	ctx := context.Background()
	repo := NewIngestedChunkRepo(gdb, logger.NewNop())

	if err := repo.ReplaceForSources(ctx, nil, []string{"a.md", "b.md"}, []*types.IngestedChunk{
		row("a.md", "1"), row("a.md", "2"), row("b.md", "3"),
	}); err != nil {
		t.Fatalf("ReplaceForSources: %v", err)
	}

	rows, err := repo.GetBySourceKeys(ctx, nil, []string{"a.md"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("GetBySourceKeys: err=%v len=%d", err, len(rows))
	}

	// a.md shrinks to one chunk; b.md untouched
	if err := repo.ReplaceForSources(ctx, nil, []string{"a.md"}, []*types.IngestedChunk{row("a.md", "2")}); err != nil {
		t.Fatalf("ReplaceForSources(second): %v", err)
	}
	rows, err = repo.GetBySourceKeys(ctx, nil, []string{"a.md", "b.md"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("after replace: err=%v len=%d", err, len(rows))
	}
	if rows[0].ChunkID != "2" || rows[1].ChunkID != "3" {
		t.Fatalf("unexpected rows: %s %s", rows[0].ChunkID, rows[1].ChunkID)
	}

	keys, err := repo.ListSourceKeys(ctx, nil)
	if err != nil || len(keys) != 2 || keys[0] != "a.md" || keys[1] != "b.md" {
		t.Fatalf("ListSourceKeys: keys=%v err=%v", keys, err)
	}

	if err := repo.FullDeleteBySourceKeys(ctx, nil, []string{"b.md"}); err != nil {
		t.Fatalf("FullDeleteBySourceKeys: %v", err)
	}
	rows, _ = repo.GetBySourceKeys(ctx, nil, []string{"b.md"})
	if len(rows) != 0 {
		t.Fatalf("expected b.md rows deleted, got %d", len(rows))
	}
}

func TestIngestedChunkRepoEmptyInputs(t *testing.T) {
	gdb := testDB(t)
	repo := NewIngestedChunkRepo(gdb, logger.NewNop())
	ctx := context.Background()
	if rows, err := repo.GetBySourceKeys(ctx, nil, nil); err != nil || len(rows) != 0 {
		t.Fatalf("GetBySourceKeys(nil): rows=%v err=%v", rows, err)
	}
	if err := repo.ReplaceForSources(ctx, nil, nil, nil); err != nil {
		t.Fatalf("ReplaceForSources(nil): %v", err)
	}
	if err := repo.FullDeleteBySourceKeys(ctx, nil, nil); err != nil {
		t.Fatalf("FullDeleteBySourceKeys(nil): %v", err)
	}
}
