// Package db embeds the storefront database schema so migrations run from
// the binary without external files.
package db

import _ "embed"

// Schema holds the DDL for the users, products, orders, order_items, and
// contacts tables.
//
//go:embed migrations/001_schema.sql
var Schema string
