// Package botstate implements the Reconciler: the local set of bot views
// kept current from two sources.
//
// Push events patch single bots in place (status updates, QR availability,
// optimistic disconnects) or schedule a delayed full fetch when the change
// is structural (created, updated, deleted, connected). A full fetch
// overwrites every authoritative field it carries and keeps the real-time
// overlay the fetch lacks. A fetch never removes a bot; only a deletion
// event does.
//
// The Reconciler runs on the event loop. Fetches run off the loop and
// their results are applied back on it.
package botstate
