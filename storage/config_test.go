package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig_YAMLShapes(t *testing.T) {
	var sqliteConfig Config
	require.NoError(t, yaml.Unmarshal([]byte("type: sqlite\ndata_path: /var/lib/icalingua\n"), &sqliteConfig))
	assert.Equal(t, "sqlite", sqliteConfig.Type)
	assert.Equal(t, "/var/lib/icalingua", sqliteConfig.DataPath)

	var mysqlConfig Config
	require.NoError(t, yaml.Unmarshal([]byte(
		"type: mysql\nhost: db.example.com\nusername: icalingua\npassword: secret\ndatabase: chat\n",
	), &mysqlConfig))
	assert.Equal(t, "mysql", mysqlConfig.Type)
	assert.Equal(t, "db.example.com", mysqlConfig.Host)
	assert.Equal(t, "chat", mysqlConfig.Database)
}

func TestParseDialect(t *testing.T) {
	dialect, err := parseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, Postgres, dialect)

	dialect, err = parseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, dialect)

	_, err = parseDialect("oracle")
	require.Error(t, err)
}

func TestConfig_DSN(t *testing.T) {
	sqliteConfig := &Config{Type: "sqlite", DataPath: t.TempDir()}
	dsn, err := sqliteConfig.dsn(SQLite, 42)
	require.NoError(t, err)
	assert.Contains(t, dsn, "icalingua.42.db")

	mysqlConfig := &Config{Type: "mysql", Host: "db.example.com", Username: "u", Password: "p", Database: "chat"}
	dsn, err = mysqlConfig.dsn(MySQL, 42)
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db.example.com:3306)")
	assert.Contains(t, dsn, "sql_mode=")

	postgresConfig := &Config{Type: "postgresql", Host: "db.example.com", Username: "u", Password: "p", Database: "chat"}
	dsn, err = postgresConfig.dsn(Postgres, 42)
	require.NoError(t, err)
	assert.Contains(t, dsn, "search_path=icalingua_42")
	assert.Contains(t, dsn, "port=5432")
}
