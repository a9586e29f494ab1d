// Package protocols implements study protocols and the protocol service.
//
// A protocol snapshot nests four open hierarchies: device configurations,
// task configurations carrying measures, and triggers. Variants this
// process does not know survive a snapshot round trip unchanged.
package protocols
