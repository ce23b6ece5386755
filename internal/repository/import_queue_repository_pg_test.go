package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/linkdoc-import/internal/database"
	"github.com/stanstork/linkdoc-import/internal/migration"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func TestPostgresConcurrentClaims(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := database.Open(database.Options{Driver: database.DriverPostgres, URL: dsn, MaxOpenConns: 20}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.RunMigrations(ctx, db, database.DriverPostgres))

	_, err = db.ExecContext(ctx, `TRUNCATE import_jobs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	repo := NewImportQueueRepository(db, DialectPostgres, zerolog.Nop())

	const jobs = 25
	for i := 0; i < jobs; i++ {
		_, err := repo.Enqueue(ctx, newJob("/bulk.csv"))
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[int64]int{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := uuid.NewString()
			for {
				job, err := repo.ClaimNext(ctx, worker)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equalf(t, 1, n, "job %d claimed %d times", id, n)
	}
}
