// Package live streams post vote totals to websocket subscribers.
//
// A subscriber connects to /ws/posts?post_id=N with the forum.live.v1
// subprotocol, receives a snapshot of the current total and then one update
// per successful cast on that post. Fanout never blocks the vote path:
// updates to a slow subscriber are dropped, and the next update carries the
// full total anyway.
package live
