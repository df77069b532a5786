// Package ir provides the value model shared by every other package.
//
// ir imports nothing internal. Values are restricted to JSON kinds without
// floats so that canonical encoding and content hashes are deterministic
// across processes and restarts.
package ir
