// Package wire provides the JSON value tree that every other package
// serializes through.
//
// A Value is one of Null, Bool, Number, String, Array or Object. Numbers keep
// their literal text so a payload that is parsed and re-marshaled keeps the
// exact digits it arrived with; this is what lets unknown polymorphic
// variants round-trip without loss.
//
// Two serializations exist:
//   - Marshal: compact JSON with object keys in RFC 8785 order and no HTML
//     escaping. Deterministic, used for wire output.
//   - MarshalCanonical: Marshal plus NFC string normalization. Used only
//     for content hashes; payloads are never rewritten on the wire.
//
// wire imports nothing internal.
package wire
