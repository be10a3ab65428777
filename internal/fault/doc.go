// Package fault provides the canonical data model for the vigil safety kernel.
//
// This package contains type definitions only. All other internal packages
// import fault; fault imports nothing internal. This ensures the data model
// remains the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use integer per-mille values for ratios
//   - All timing is expressed in logical ticks (uint64), never wall-clock
//   - All JSON tags use snake_case
//   - Severity and State carry a total order (Rank) used for floor checks
package fault
