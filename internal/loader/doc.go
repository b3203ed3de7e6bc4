// Package loader turns resource patterns into rule bases.
//
// Load resolves doublestar patterns to CUE rule sources and compiles
// them. Cache shares compiled rule bases between suites that name the
// same resources, keeping each alive only while some suite holds it.
package loader
