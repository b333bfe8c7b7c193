// Package journal persists bot activity events to Postgres.
//
// The reconciler only consumes events that change bot state. Errors, sent
// messages, log lines and statistics updates are routed to other
// consumers; the journal is one of them. Each such event becomes an Entry
// in the bot_activity table.
//
// Recording happens on the event loop and never blocks: entries go into a
// bounded in-memory buffer that drops the oldest entry when full. A writer
// goroutine drains the buffer in batches, on a timer or as soon as a full
// batch is waiting.
package journal
