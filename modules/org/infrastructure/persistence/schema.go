package persistence

import _ "embed"

//go:embed schema/org-hierarchy-schema.sql
var postgresSchema string

//go:embed schema/org-hierarchy-sqlite.sql
var sqliteSchema string
