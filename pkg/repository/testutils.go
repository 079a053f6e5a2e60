package repository

import (
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/alicebob/miniredis/v2"
)

// NewRedisClientForTest creates a Redis client backed by miniredis for testing
func NewRedisClientForTest() (*common.RedisClient, *miniredis.Miniredis, error) {
	s, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}

	rdb, err := common.NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	})
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return rdb, s, nil
}

// NewProgressRedisRepositoryForTest creates a ProgressRepository backed by miniredis
func NewProgressRedisRepositoryForTest() (ProgressRepository, *miniredis.Miniredis, error) {
	rdb, s, err := NewRedisClientForTest()
	if err != nil {
		return nil, nil, err
	}
	return NewProgressRedisRepository(rdb), s, nil
}

// PostgresTestDSNEnv names the connection string used by Postgres-backed tests.
// Those tests are skipped when it is unset.
const PostgresTestDSNEnv = "PAPERS_TEST_POSTGRES_DSN"

// NewProgressPostgresRepositoryForTest migrates the database at dsn and
// empties the progress table
func NewProgressPostgresRepositoryForTest(dsn string) (ProgressRepository, *PostgresBackend, error) {
	backend, err := NewPostgresBackendFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := backend.RunMigrations(); err != nil {
		backend.Close()
		return nil, nil, err
	}
	if _, err := backend.DB().Exec("TRUNCATE progress_completion"); err != nil {
		backend.Close()
		return nil, nil, err
	}
	return NewProgressPostgresRepository(backend.DB()), backend, nil
}
