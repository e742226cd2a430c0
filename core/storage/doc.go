// Package storage wraps the S3-compatible object storage client used to
// publish exported dataset files for the reporting frontend.
//
// The Client interface is deliberately small (bucket check/create and
// object upload) so tests can substitute a mock.
package storage
