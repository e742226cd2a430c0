// Package publish uploads exported dataset files to object storage,
// preserving their paths relative to the output root. Downstream reporting
// reads the files from the bucket instead of the collector host's disk.
package publish
