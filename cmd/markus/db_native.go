//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// initDB opens the database with the pure Go driver. Connection settings in
// the DSN are written the way the cgo driver takes them, so they are mapped
// to pragmas here.
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", nativeDSN(dataSource))
}

func nativeDSN(dsn string) string {
	file, query, ok := strings.Cut(dsn, "?")
	if !ok {
		return dsn
	}
	var params []string
	for _, kv := range strings.Split(query, "&") {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "_journal_mode":
			params = append(params, "_pragma=journal_mode("+value+")")
		case "_busy_timeout":
			params = append(params, "_pragma=busy_timeout("+value+")")
		case "_synchronous":
			params = append(params, "_pragma=synchronous("+value+")")
		default:
			params = append(params, kv)
		}
	}
	return file + "?" + strings.Join(params, "&")
}
