// Package registry persists per-user state: who has talked to the bot
// (user registry) and which links they submitted (link ledger).
//
// The default file driver mirrors both documents in memory and rewrites
// them wholesale after every mutation, serialized behind a single mutex.
// Persistence is best-effort relative to the triggering request: a failed
// write is logged by the caller and never blocks the primary response.
package registry
