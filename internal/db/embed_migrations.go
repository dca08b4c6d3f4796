package db

import "embed"

// MigrationFS carries the versioned schema under internal/db/migrations,
// compiled into the binary so cmd/migrate needs no files on disk.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
