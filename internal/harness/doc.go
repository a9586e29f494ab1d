// Package harness runs request scenarios against fresh reference services.
//
// A scenario is a YAML file listing request documents, each addressed to
// one service and written at any API version the service accepts. Every
// scenario runs in its own catalog session with a deterministic clock and
// sequential IDs, so the resulting request log is reproducible and can be
// compared against a golden file.
//
//	name: downgrade-sensor-data
//	description: A 1.0 caller reads data appended at 1.2.
//	flow:
//	  - service: DataStreamService
//	    request:
//	      __type: dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.OpenDataStreams
//	      apiVersion: "1.0"
//	      configuration: {...}
//	  - service: DataStreamService
//	    request: {...}
//	    expect:
//	      response: [{"measurements": [...]}]
//	assertions:
//	  - type: log_count
//	    operation: OpenDataStreams
//	    count: 1
//
// Expected responses are subset matches: objects only need the listed keys,
// arrays must have the listed length. The response is the one the caller
// receives, so it is shaped for the version the request declared.
//
// Assertions are evaluated against the request log after the flow:
//
//   - log_count: an operation (short name) was logged exactly count times
//   - log_order: operations were logged in this relative order
//   - published: an event type was published exactly count times
//   - failed: an operation failed with the given exception code
package harness
