// Package textutil provides text helpers for article rendering: URL slugs,
// headline casing, and word counting.
package textutil
