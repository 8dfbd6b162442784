// Package testutil contains fluent builders for events and sessions used
// across tests. It is not intended for production usage.
package testutil
