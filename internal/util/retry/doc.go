// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable attempts,
// delays and an optional classifier. It wraps resource lookups against the
// Google Cloud, Kubernetes and object storage APIs.
package retry
