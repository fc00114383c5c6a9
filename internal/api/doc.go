// Package api defines the transport types shared by the daemon's HTTP
// surface and the CLI, plus the store-backed workflows behind both.
package api
