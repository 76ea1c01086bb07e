// Package catalog compiles the DR method catalog: per-method parameter
// schemas, default tables, deprecated-name renames, and fallback chains.
//
// The catalog is CUE. schema.cue constrains every catalog source, and
// methods.cue is the built-in catalog. A file can replace the built-in one
// (ARTDR_CATALOG); it is unified with the same schema, so a bad range or an
// unknown back-end reference fails when the catalog is loaded rather than
// mid-run.
//
// The same Field entries drive both `list params` output and the coercion
// of --param overrides, so the listing and the accepted input never drift.
package catalog
