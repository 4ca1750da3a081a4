// Package ir provides the data model shared by every salesboost package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types for money - Money is int64 minor units (cents)
//   - Product and variant identifiers are opaque strings (ID); the host
//     platform emits them as JSON numbers, the admin as strings
//   - CartSnapshot is a value read from the host, never mutated locally
//   - All JSON tags use the host/admin wire names
package ir
