package harness

import (
	"context"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/carp/internal/catalog"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/testutil"
	"github.com/roach88/carp/internal/wire"
)

// Run executes a scenario in a fresh session of c.
//
// Expectation and assertion failures are reported in the result. The error
// is non-nil only when the scenario itself cannot be executed, e.g. a
// request does not convert to JSON or a response is not valid JSON.
func Run(ctx context.Context, c *catalog.Catalog, scenario *Scenario) (*Result, error) {
	return RunWithSink(ctx, c, scenario, nil)
}

// RunWithSink is Run with every logged request also appended to sink.
func RunWithSink(ctx context.Context, c *catalog.Catalog, scenario *Scenario, sink replay.Sink) (*Result, error) {
	session := c.NewSession(catalog.SessionConfig{
		Clock: testutil.NewDeterministicClock(),
		IDs:   testutil.NewSequentialIDs(),
		Sink:  sink,
	})
	defer session.Close()

	field := c.Registry.DiscriminatorField()
	result := NewResult(field)

	for i, step := range scenario.Flow {
		request, err := nodeValue(&step.Request)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: request: %w", i, err)
		}
		body, err := wire.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: request: %w", i, err)
		}

		logged := len(session.Log(step.Service))
		out, handleErr := session.Handle(ctx, step.Service, body)
		if entries := session.Log(step.Service); len(entries) > logged {
			result.Log = append(result.Log, entries[len(entries)-1])
		}

		sr := StepResult{Service: step.Service}
		if obj, ok := request.(wire.Object); ok {
			sr.Operation, _ = obj.String(field)
		}
		if handleErr != nil {
			failure, ok := envelope.ParseFailure(out)
			if !ok {
				return nil, fmt.Errorf("flow[%d]: unreadable failure: %w", i, handleErr)
			}
			sr.Exception, sr.Message = failure.Type, failure.Message
		} else if sr.Response, err = wire.Parse(out); err != nil {
			return nil, fmt.Errorf("flow[%d]: response: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)

		if err := checkExpect(sr, step.Expect); err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, replay.ShortName(sr.Operation), err))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func checkExpect(sr StepResult, expect *Expect) error {
	if expect == nil || expect.Exception == "" {
		if sr.Exception != "" {
			return fmt.Errorf("expected success, got %s: %s", sr.Exception, sr.Message)
		}
	} else {
		if sr.Exception == "" {
			return fmt.Errorf("expected %s, got success", expect.Exception)
		}
		if string(sr.Exception) != expect.Exception {
			return fmt.Errorf("expected %s, got %s: %s", expect.Exception, sr.Exception, sr.Message)
		}
		return nil
	}

	if expect == nil || expect.Response.Kind == 0 {
		return nil
	}
	want, err := nodeValue(&expect.Response)
	if err != nil {
		return fmt.Errorf("expected response: %w", err)
	}
	if path, ok := matchSubset(want, sr.Response, "$"); !ok {
		return fmt.Errorf("response differs at %s: want %s, got %s",
			path, wire.MustMarshal(want), wire.MustMarshal(sr.Response))
	}
	return nil
}

// matchSubset reports whether got contains want. Objects match when every
// key of want matches; arrays must have equal length. On mismatch the path
// of the first differing value is returned.
func matchSubset(want, got wire.Value, path string) (string, bool) {
	switch w := want.(type) {
	case wire.Object:
		g, ok := got.(wire.Object)
		if !ok {
			return path, false
		}
		for _, k := range w.SortedKeys() {
			gv, ok := g[k]
			if !ok {
				return path + "." + k, false
			}
			if p, ok := matchSubset(w[k], gv, path+"."+k); !ok {
				return p, false
			}
		}
		return "", true
	case wire.Array:
		g, ok := got.(wire.Array)
		if !ok || len(g) != len(w) {
			return path, false
		}
		for i := range w {
			if p, ok := matchSubset(w[i], g[i], path+"["+strconv.Itoa(i)+"]"); !ok {
				return p, false
			}
		}
		return "", true
	default:
		if got == nil || !wire.Equal(want, got) {
			return path, false
		}
		return "", true
	}
}

// nodeValue converts a YAML node to a wire value. Number literals that are
// valid JSON are kept verbatim; other YAML number spellings such as 0x10
// are converted through their numeric value.
func nodeValue(n *yaml.Node) (wire.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return wire.Null{}, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		obj := make(wire.Object, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: keys must be scalars", key.Line)
			}
			if _, dup := obj[key.Value]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", key.Line, key.Value)
			}
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj[key.Value] = v
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make(wire.Array, len(n.Content))
		for i, elem := range n.Content {
			v, err := nodeValue(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func scalarValue(n *yaml.Node) (wire.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return wire.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return wire.Bool(b), nil
	case "!!int", "!!float":
		if v, err := wire.Parse([]byte(n.Value)); err == nil {
			if num, ok := v.(wire.Number); ok {
				return num, nil
			}
		}
		if n.ShortTag() == "!!int" {
			var i int64
			if err := n.Decode(&i); err != nil {
				return nil, err
			}
			return wire.Int(i), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return wire.Float(f), nil
	case "!!str":
		return wire.String(n.Value), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported tag %s", n.Line, n.ShortTag())
	}
}
