// Package server is the synchronization service: HTTP endpoints for
// snapshots, checksum-addressed diffs and intent submission, plus a
// websocket stream that pushes one diff per tick.
//
// Responses share one envelope:
//
//	{"status":"ok","data":...}
//	{"status":"error","error":{"code":"CHECKSUM_TOO_OLD","message":"..."}}
//
// The service never touches simulation state directly. Reads go through
// the World Store's read lock; writes cross to the sim goroutine through
// the intent queue or the pipeline's input buffer.
package server
