// Package mocks provides centralized mock implementations for testing.
//
// This package contains mock implementations of interfaces used throughout
// the application, facilitating consistent and DRY testing across the
// codebase. Instead of defining inline mocks in individual test files, these
// standardized implementations can be reused.
//
// The store mocks (MockTaskStore, MockJobStore) are stateful in-memory
// implementations honoring the same error contracts as the Postgres stores,
// so higher layers can be exercised without a database. The integration
// mocks expose Fn hooks for per-test behavior overrides.
package mocks
