// Package sqlite provides an SQLite-backed observation journal for task
// pollers. It handles opening the database, creating the schema, and mapping
// published poller updates to rows and back.
//
// The journal is an audit trail only: nothing in it is ever used to restore
// poller state after a restart.
package sqlite
