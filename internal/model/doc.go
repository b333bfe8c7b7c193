// Package model defines the bot records shared across the sync subsystem.
//
// Conventions:
//   - IDs: opaque strings issued by the bot backend
//   - Timestamps: time.Time in UTC; zero means unknown
//   - Optional values are pointers (nil = the source did not say)
package model
