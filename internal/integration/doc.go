// Package integration holds end-to-end tests that run the domain services
// against a real PostgreSQL started with testcontainers. They are skipped
// unless INTEGRATION_TEST=1.
package integration
