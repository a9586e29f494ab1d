package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a request flow with expectations.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flow is the ordered list of requests to handle.
	Flow []Step `yaml:"flow"`

	// Assertions are checked against the request log after the flow.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one request.
type Step struct {
	// Service is the service name, e.g. "DataStreamService".
	Service string `yaml:"service"`

	// Request is the request document. It must be a mapping and carry the
	// discriminator and apiVersion fields. Held as a node value: strict
	// decoding would otherwise treat its keys as fields of yaml.Node.
	Request yaml.Node `yaml:"request"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step.
type Expect struct {
	// Exception is the expected failure code. Empty means success.
	Exception string `yaml:"exception,omitempty"`

	// Response is matched as a subset of the caller's response. Ignored
	// when Exception is set or when absent (zero Kind).
	Response yaml.Node `yaml:"response,omitempty"`
}

// Assertion is a check on the request log.
type Assertion struct {
	Type string `yaml:"type"`

	// Service restricts log_count, log_order and failed to one service.
	Service string `yaml:"service,omitempty"`

	// Operation is a short operation name (used by log_count and failed).
	Operation string `yaml:"operation,omitempty"`

	// Operations is the expected relative order (used by log_order).
	Operations []string `yaml:"operations,omitempty"`

	// Event is an event discriminator (used by published).
	Event string `yaml:"event,omitempty"`

	// Exception is the expected failure code (used by failed).
	Exception string `yaml:"exception,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertLogCount  = "log_count"
	AssertLogOrder  = "log_order"
	AssertPublished = "published"
	AssertFailed    = "failed"
)

// LoadScenario reads and parses a scenario file. Unknown fields are
// rejected so that typos do not silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, in file name order.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Service == "" {
			return fmt.Errorf("flow[%d]: service is required", i)
		}
		if step.Request.Kind != yaml.MappingNode {
			return fmt.Errorf("flow[%d]: request must be a mapping", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLogCount:
		if a.Operation == "" {
			return fmt.Errorf("assertions[%d]: operation is required for log_count", index)
		}
	case AssertLogOrder:
		if len(a.Operations) == 0 {
			return fmt.Errorf("assertions[%d]: operations list is required for log_order", index)
		}
	case AssertPublished:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for published", index)
		}
	case AssertFailed:
		if a.Operation == "" || a.Exception == "" {
			return fmt.Errorf("assertions[%d]: operation and exception are required for failed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
