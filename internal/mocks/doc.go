// Package mocks provides centralized mock implementations for testing.
//
// Instead of defining inline fakes in individual test files, tests share
// these mocks. Each one exposes function fields for overriding behavior and
// records its calls for verification.
//
// Usage:
//
//	source := mocks.NewMockStatusSource(
//	    mocks.StatusResponse{Snapshot: running},
//	    mocks.StatusResponse{Err: task.NewTransportError("fetch status", 503, "service unavailable", nil)},
//	    mocks.StatusResponse{Snapshot: succeeded},
//	)
//	p := poller.New("T1", source, poller.Config{Interval: time.Millisecond}, logger)
package mocks
