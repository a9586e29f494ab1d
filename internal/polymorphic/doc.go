// Package polymorphic serializes open sets of types through a discriminator
// field.
//
// A polymorphic base (Measure, Trigger, Data, ...) is a Go interface plus a
// Hierarchy[T] that maps each stable discriminator string to a Codec for one
// concrete variant. Every serialized instance is a JSON object carrying its
// discriminator under the registry's discriminator field ("__type" unless
// configured otherwise):
//
//	{"__type":"dk.cachet.carp.common.application.measures.DataStreamMeasure","type":"dk.cachet.carp.stepcount"}
//
// # Unknown variants
//
// Decoding a discriminator that has no registered variant never fails. The
// hierarchy wraps the complete object in the base's fallback type (built from
// Unknown), and encoding that fallback re-emits the stored object verbatim.
// Receivers that do not know a type can therefore pass it on unchanged.
//
// # Registration
//
// Registration belongs to process startup. Build a Registry, create one
// Hierarchy per base, register variants, then call Freeze. After Freeze the
// tables are immutable and lookups take no lock. Registering the same
// discriminator twice fails with fault.CodeDuplicateRegistration and the
// first registration stays active.
package polymorphic
