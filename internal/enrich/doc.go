// Package enrich holds the directory enrichment executors: photo sync mirrors
// listing photos into blob storage, geocode backfill resolves contractor
// addresses to coordinates. Both process their items through the throttled
// batch runner and hand unattempted work back as a delayed follow-up job when
// a provider rate-limits.
package enrich
