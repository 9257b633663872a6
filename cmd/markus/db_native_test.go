//go:build !cgo_sqlite

package main

import "testing"

func TestNativeDSN(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"./data/markus.db", "./data/markus.db"},
		{"a.db?_journal_mode=WAL&_busy_timeout=5000", "a.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{"a.db?_synchronous=NORMAL&mode=ro", "a.db?_pragma=synchronous(NORMAL)&mode=ro"},
	}
	for _, tc := range testCases {
		if got := nativeDSN(tc.in); got != tc.want {
			t.Errorf("nativeDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
