package migration_0

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func TestMigration(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, Migration(db))
	assert.True(t, db.Migrator().HasTable(&Run{}))
	assert.True(t, db.Migrator().HasTable(&JobResult{}))
	assert.True(t, db.Migrator().HasColumn(&JobResult{}, "duration_ms"))

	runId := uuid.New()
	require.NoError(t, db.Create(&Run{
		Id:           runId,
		Source:       "gs://bucket/Inputs",
		Destination:  "gs://bucket/Outputs",
		Status:       "COMPLETED",
		CreationTime: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&JobResult{
		RunId:  runId,
		Input:  "gs://bucket/Inputs/a.png",
		Output: "gs://bucket/Outputs/a.mp4",
		Status: "COMPLETED",
	}).Error)

	var duration int64
	require.NoError(t, db.Raw("SELECT duration_ms FROM job_results WHERE run_id = ?", runId).Scan(&duration).Error)
	assert.Equal(t, int64(0), duration)

	// Reapplying to an existing schema changes nothing.
	require.NoError(t, Migration(db))

	var count int64
	require.NoError(t, db.Model(&JobResult{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
