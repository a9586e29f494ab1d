// Package replay records service invocations for golden-file regression
// tests and replays them against fresh services.
//
// A Proxy wraps one service. Every call through it appends exactly one
// LoggedRequest, in invocation order: the serialized request, the integration
// events observed since the previous call, the events published during the
// call, and either the serialized response or the failure's stable code.
//
// Golden files live under testdata/golden/<service>/<operation>.golden, one
// per operation, holding every logged request for that operation in log
// order. Non-deterministic values are replaced by a Normalizer before
// comparison. Run tests with -update to regenerate them.
package replay
