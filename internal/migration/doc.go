// Package migration rewrites service requests and responses between API
// versions.
//
// A Migrator holds an ordered table of Steps for one service. Each Step
// bridges two adjacent versions: its request transforms lift a From-shaped
// request into the To shape, and its response transforms lower a To-shaped
// response back into the From shape. Migrating from an old version to the
// current one applies every step in ascending order; responses walk the same
// chain in descending order.
//
// Transforms are pure functions of the JSON tree. The Migrator hands each
// chain a private deep copy, so a transform may edit and return the object it
// receives, but it must not keep references to it or perform I/O.
//
// # Resolution before application
//
// The whole chain from the declared version to the current version is
// resolved before any transform runs. A declared version that is newer than
// current, or that no step starts from, fails with UnsupportedVersionError
// and leaves the input untouched.
package migration
