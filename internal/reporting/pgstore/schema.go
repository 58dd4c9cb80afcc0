package pgstore

import _ "embed"

// Schema creates the tables and indexes the store reads. Statements are
// idempotent.
//
//go:embed schema.sql
var Schema string
