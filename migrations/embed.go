// Package migrations embeds the dockd SQL schema into the binary.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql files at its root.
//
//go:embed *.sql
var FS embed.FS
