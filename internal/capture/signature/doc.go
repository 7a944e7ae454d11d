// Package signature decodes ECMA-335 method signature blobs (Partition II,
// 23.2).
//
// Decoding is driven by a TypeProvider, mirroring how runtime metadata
// readers separate the blob grammar from what a caller wants to build out
// of each encoded type. The capture pipeline uses a provider that only
// cares about type references; diagnostics use one that renders names.
//
// Every read is bounds checked against the blob. A truncated or malformed
// blob yields an error wrapping ErrInvalidSignature and never panics.
package signature
