// Package crawler defines the types, sentinel errors, and capability
// interfaces shared by the address-deduplicating crawl engine: the resolver
// and fetcher it drives, the stores it reports to, and the aggregate Result it
// returns.
package crawler
