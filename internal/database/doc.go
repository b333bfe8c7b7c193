// Package database provides PostgreSQL connection pool management.
//
// The only database user is the activity journal, which appends bot
// events to the bot_activity table.
package database
