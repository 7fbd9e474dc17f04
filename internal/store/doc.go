// Package store declares the persistence contracts for crawl runs and their
// per-site progress. Implementations live under internal/storage; this package
// must not import database drivers or concrete clients.
package store
