// Caching of platform lookups (as JSON strings) with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The engine uses this to avoid fetching the forum moderator list for every submission; the list changes rarely, and every platform read spends rate-limit budget.
package cachestore
