// Package services holds the error taxonomy and context helpers shared by the
// external provider clients (llm, serp, geocode, blobstore) and the executors
// that consume them.
package services
