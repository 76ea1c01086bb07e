// Package params provides the typed parameter values used to configure DR
// runs, together with their canonical serialization.
//
// This package contains no internal imports; every other package may use it.
//
// Key constraints:
//   - Values are scalars only: String, Int, Float, Bool
//   - Persisted params are always produced by Encode (RFC 8785 canonical JSON)
//   - Identical parameter sets encode byte-identically and hash identically
package params
