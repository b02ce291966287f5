// Package poller reconciles the local view of a remote task with the server.
//
// A Poller owns the query loop for exactly one task id. It queries a
// StatusSource immediately on Start, then again a fixed interval after each
// query completes, until the server reports a terminal status, the poller is
// stopped, or an optional failure cutoff abandons the task. Successful
// queries replace the published snapshot; failed queries only set LastError
// and never disturb the last good snapshot.
//
// A Watcher binds a single active task id to a consumer and guarantees that
// switching ids starts from a fresh state and silences the superseded poller.
package poller
