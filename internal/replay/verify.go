package replay

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/wire"
)

// MismatchError reports the first replayed entry whose outcome differs from
// the logged one.
type MismatchError struct {
	Index     int
	Operation string
	Want      []byte
	Got       []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("entry %d (%s) diverged:\n  want %s\n  got  %s", e.Index, ShortName(e.Operation), e.Want, e.Got)
}

// Verify re-executes logged entries in order through p, which should wrap a
// fresh service, and compares each outcome and its published events with the
// log after normalization. Preceding events are not compared: they came from
// other services.
//
// Returns the number of entries replayed and a *MismatchError on the first
// divergence.
func Verify[S any](ctx context.Context, p *Proxy[S], entries []LoggedRequest, n Normalizer) (int, error) {
	for i, want := range entries {
		req, _, err := p.codec.DecodeRequest(want.Request)
		if err != nil {
			return i, fault.Wrap(fault.CodeMalformedEnvelope, err, "replay entry %d", i)
		}

		// The call's own error is part of the outcome being compared.
		_, _ = p.Invoke(ctx, req)
		got, ok := p.Last()
		if !ok || got.Operation != req.TypeName() {
			return i, fault.New(fault.CodeInternal, "replay entry %d was not logged", i)
		}

		wantBytes, err := outcome(want, n)
		if err != nil {
			return i, err
		}
		gotBytes, err := outcome(got, n)
		if err != nil {
			return i, err
		}
		if !bytes.Equal(wantBytes, gotBytes) {
			return i, &MismatchError{Index: i, Operation: want.Operation, Want: wantBytes, Got: gotBytes}
		}
	}
	return len(entries), nil
}

// outcome renders what replay must reproduce: response or exception, and the
// published events.
func outcome(l LoggedRequest, n Normalizer) ([]byte, error) {
	l.PrecedingEvents = nil
	normalized := n.Normalize([]LoggedRequest{l})[0]
	obj := normalized.Object()
	delete(obj, "precedingEvents")
	delete(obj, "request")
	return wire.Marshal(obj)
}
