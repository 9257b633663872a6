/*
Package store persists rendered markus output in SQLite so that repeated
renders of the same source with the same options can be served without
parsing.

Entries are keyed by Key, a SHA-256 over the render options and the source
text. The cache tracks hits per entry, which makes it possible to report the
hottest documents and to prune entries that have not been used for a while.
*/
package store
