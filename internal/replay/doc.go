// Package replay records simulation ticks to a newline-delimited file and
// plays them back.
//
// A recording is one JSON object per line, one line per tick in which
// anything happened:
//
//	{"tick":1,"intents":[{"verb":"Spawn","args":{"pos":[0,0,0]}}],"input_events":[]}
//
// Intents that duplicate one of the same tick's input events are left out
// of the intents list; replay rebuilds them from input_events.
//
// The Controller implements engine.Hooks, so the sim loop does not know
// which mode it runs in.
package replay
