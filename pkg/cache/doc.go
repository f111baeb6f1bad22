// Package cache provides a redis-backed response cache for GitLab REST GET
// requests, with ETag support for conditional requests.
//
// GitLab does not send freshness headers on API responses, so entries live
// for a caller-chosen TTL. Entries remember the response ETag; while an
// entry exists the client sends If-None-Match and a 304 answer serves the
// cached body and refreshes the TTL.
//
// Cache keys are deterministic strings built from the endpoint path and the
// sorted query parameters, so the same logical request always maps to the
// same redis key regardless of parameter order.
package cache
