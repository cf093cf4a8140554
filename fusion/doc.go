// Package fusion implements a Discord bot for recording, retrieving,
// searching and moderating short attributed quotations, along with
// World of Warcraft character lookups via the Blizzard and Raider.IO
// APIs.
//
// Key components of the package include:
//
//   - Fusion: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles the Discord gateway session and slash commands.
//   - QuoteStore: Persistence and retrieval for quotes, including
//     short-identifier resolution, free-text search, usage/like counters,
//     and soft-delete/restore lifecycle.
//   - WarcraftClient: Blizzard profile API client with OAuth
//     client-credential token caching.
//   - RaiderIOClient: Raider.IO character and guild profile client.
//   - API: A small read-only HTTP API for health checks and quote lookups.
//
// The bot supports the following commands:
//
//   - /quote add|find|search|delete|restore: Quote management.
//   - /warcraft character: Blizzard character profile lookup.
//   - /raiderio character|guild: Raider.IO profile lookups.
//   - /ping: Liveness check.
//
// Quotes are persisted via GORM (SQLite by default, PostgreSQL
// optionally), keyed by an 8-character human-typeable short identifier
// drawn from an ambiguity-reduced alphabet.
package fusion
