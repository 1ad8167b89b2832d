// Package testutil provides shared test helpers for footprint:
//   - FakeStore, an in-memory store.Store with rectangle geometries (store.go)
//   - BDOT10k-shaped zip archive builders (archives.go)
//   - Miniredis helpers for ledger and scheduler unit tests (miniredis.go)
//   - PostGIS and Redis container helpers for integration tests (postgis.go, redis.go)
//
// Container helpers require Docker and are gated behind the "integration" build
// tag:
//
//	go test -tags=integration ./...
package testutil
