// Package sink persists the book records produced by a run. Every sink
// implements crawler.RecordSink; Multi fans a run out to all configured ones.
package sink
