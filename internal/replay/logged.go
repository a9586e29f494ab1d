package replay

import (
	"fmt"
	"strings"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// LoggedRequest is the record of one invocation. It is never modified after
// the proxy appends it; accessors on Proxy return copies.
type LoggedRequest struct {
	// ID correlates the entry across the in-memory log and the store.
	ID string

	// Service is the name of the invoked service.
	Service string

	// Operation is the request discriminator.
	Operation string

	// Request is the serialized request at the service's current version.
	Request wire.Object

	// PrecedingEvents were observed on the bus after the previous call
	// through the proxy returned and before this one started.
	PrecedingEvents []wire.Object

	// PublishedEvents were observed on the bus while the call ran.
	PublishedEvents []wire.Object

	// Response is the serialized result. Nil when the call failed.
	Response wire.Value

	// Exception is the failure code. Empty when the call succeeded.
	Exception fault.Code
}

// Failed reports whether the call failed.
func (l LoggedRequest) Failed() bool {
	return l.Exception != ""
}

// ShortOperation returns the operation name without its base prefix, e.g.
// "GetDataStream" for
// "dk.cachet.carp.data.infrastructure.DataStreamServiceRequest.GetDataStream".
func (l LoggedRequest) ShortOperation() string {
	return ShortName(l.Operation)
}

// ShortName strips everything up to the last '.' of a discriminator.
func ShortName(discriminator string) string {
	if i := strings.LastIndexByte(discriminator, '.'); i >= 0 {
		return discriminator[i+1:]
	}
	return discriminator
}

// Object returns the wire form of the entry: request, events and outcome.
// ID and Service are metadata and not part of it.
func (l LoggedRequest) Object() wire.Object {
	obj := wire.Object{
		"request":         l.Request.Clone(),
		"precedingEvents": eventArray(l.PrecedingEvents),
		"publishedEvents": eventArray(l.PublishedEvents),
	}
	if l.Failed() {
		obj["exception"] = wire.String(l.Exception)
	} else {
		response := l.Response
		if response == nil {
			response = wire.Null{}
		}
		obj["response"] = wire.Clone(response)
	}
	return obj
}

// Marshal returns the deterministic bytes of the entry's wire form.
func (l LoggedRequest) Marshal() ([]byte, error) {
	return wire.Marshal(l.Object())
}

func eventArray(events []wire.Object) wire.Array {
	arr := make(wire.Array, len(events))
	for i, e := range events {
		arr[i] = e.Clone()
	}
	return arr
}

// FromObject rebuilds an entry from its wire form. The discriminator field
// names where the request's operation is stored.
func FromObject(obj wire.Object, discriminatorField string) (LoggedRequest, error) {
	var l LoggedRequest

	req, ok := obj.Object("request")
	if !ok {
		return l, fault.Malformed("logged request: missing \"request\" object")
	}
	l.Request = req.Clone()
	op, ok := req.String(discriminatorField)
	if !ok {
		return l, fault.Malformed("logged request: request has no %q discriminator", discriminatorField)
	}
	l.Operation = op

	var err error
	if l.PrecedingEvents, err = eventList(obj, "precedingEvents"); err != nil {
		return l, err
	}
	if l.PublishedEvents, err = eventList(obj, "publishedEvents"); err != nil {
		return l, err
	}

	exception, hasException := obj["exception"]
	response, hasResponse := obj["response"]
	switch {
	case hasException && hasResponse:
		return l, fault.Malformed("logged request: both \"response\" and \"exception\" present")
	case hasException:
		code, ok := exception.(wire.String)
		if !ok || code == "" {
			return l, fault.Malformed("logged request: \"exception\" must be a non-empty string")
		}
		l.Exception = fault.Code(code)
	case hasResponse:
		l.Response = wire.Clone(response)
	default:
		return l, fault.Malformed("logged request: neither \"response\" nor \"exception\" present")
	}
	return l, nil
}

func eventList(obj wire.Object, field string) ([]wire.Object, error) {
	raw, ok := obj[field]
	if !ok {
		return nil, nil
	}
	arr, ok := raw.(wire.Array)
	if !ok {
		return nil, fault.Malformed("logged request: %q must be an array, got %s", field, wire.KindOf(raw))
	}
	out := make([]wire.Object, len(arr))
	for i, elem := range arr {
		e, ok := elem.(wire.Object)
		if !ok {
			return nil, fault.Malformed("logged request: %s[%d] must be an object", field, i)
		}
		out[i] = e.Clone()
	}
	return out, nil
}

// Unmarshal parses an entry from JSON bytes.
func Unmarshal(data []byte, discriminatorField string) (LoggedRequest, error) {
	obj, err := wire.ParseObject(data)
	if err != nil {
		return LoggedRequest{}, fault.Wrap(fault.CodeMalformedEnvelope, err, "logged request")
	}
	return FromObject(obj, discriminatorField)
}

// clone returns a deep copy of l.
func (l LoggedRequest) clone() LoggedRequest {
	out := l
	out.Request = l.Request.Clone()
	out.PrecedingEvents = cloneEvents(l.PrecedingEvents)
	out.PublishedEvents = cloneEvents(l.PublishedEvents)
	if l.Response != nil {
		out.Response = wire.Clone(l.Response)
	}
	return out
}

func cloneEvents(events []wire.Object) []wire.Object {
	if events == nil {
		return nil
	}
	out := make([]wire.Object, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// String summarizes the entry for logs.
func (l LoggedRequest) String() string {
	outcome := "ok"
	if l.Failed() {
		outcome = string(l.Exception)
	}
	return fmt.Sprintf("%s.%s -> %s", l.Service, l.ShortOperation(), outcome)
}
