// Package sinks hosts progress.Sink implementations.
package sinks
