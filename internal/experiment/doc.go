// Package experiment runs one DR experiment end to end and assembles its
// result for the viewer.
//
// A run is a single synchronous pipeline:
//
//	validate -> sample -> execute (with fallback) -> create/upsert config
//	         -> save points -> load payload -> publish (optional)
//
// Validation of method, strategy, size and params happens before any data
// is read or written. Plans run several experiments from a YAML file in
// order.
package experiment
