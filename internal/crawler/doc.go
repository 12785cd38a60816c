// Package crawler implements the tululu archiving pipeline: the catalog
// walker, the book page parser, the asset downloader and the retry policy
// shared with the fetcher implementations.
package crawler
