// Package testing provides test utilities, builders, and fakes for unit tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ConfigBuilder: Fluent builder for creating test configurations
//   - ResourceBuilder: Fluent builder for desired-set entries
//   - MemoryStore: In-memory provisioning.StateStore
//   - FakeDriver: Map-backed provisioning.Driver with failure injection
//   - MockDriver: testify mock of provisioning.Driver
//   - RecordingObserver: Observer that keeps every event for assertions
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithProject("demo").
//	    WithDomain("chat.example.com").
//	    Build()
//
//	ip := testing.NewResource("gcp.address", "open-webui-ip").Protected().Build()
package testing
