package migrations

import "embed"

// sqlFS holds one directory of numbered SQL files per backend.
//
//go:embed postgres/*.sql clickhouse/*.sql
var sqlFS embed.FS
