package repository

import (
	"testing"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPostgresDSN(t *testing.T) {
	cfg := withPostgresDefaults(types.PostgresConfig{User: "papers", Password: `it's a \secret`})
	assert.Equal(t, "papers", cfg.Database)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)

	assert.Equal(t,
		`host='localhost' port=5432 dbname='papers' sslmode='disable' user='papers' password='it\'s a \\secret'`,
		postgresDSN(cfg))

	assert.Equal(t,
		`host='db' port=6543 dbname='p' sslmode='require'`,
		postgresDSN(types.PostgresConfig{Host: "db", Port: 6543, Database: "p", SSLMode: "require"}))
}
