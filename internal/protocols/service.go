package protocols

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/carp/internal/eventbus"
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/ids"
)

// DefaultVersionTag is the tag of a protocol's first version when none is
// given.
const DefaultVersionTag = "Initial"

// ProtocolVersion is one stored version of a protocol.
type ProtocolVersion struct {
	Tag  string    `json:"tag"`
	Date time.Time `json:"date"`
}

// Service stores versioned study protocols.
type Service interface {
	// Add stores the first version of protocol under versionTag.
	// Fails with a conflict when the protocol ID is taken.
	Add(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error

	// AddVersion stores a new version of an existing protocol.
	AddVersion(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error

	// GetBy returns the version tagged versionTag, or the latest version
	// when versionTag is nil.
	GetBy(ctx context.Context, protocolID string, versionTag *string) (StudyProtocolSnapshot, error)

	// GetAllForOwner returns the latest version of every protocol owned by
	// ownerID, in the order they were added.
	GetAllForOwner(ctx context.Context, ownerID string) ([]StudyProtocolSnapshot, error)

	// GetVersionHistoryFor lists the versions of a protocol, oldest first.
	GetVersionHistoryFor(ctx context.Context, protocolID string) ([]ProtocolVersion, error)
}

// Clock tells the time versions are stored.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type storedVersion struct {
	ProtocolVersion
	snapshot StudyProtocolSnapshot
}

type storedProtocol struct {
	ownerID  string
	versions []storedVersion
}

// Memory is a Service that keeps protocols in memory. Safe for concurrent
// use.
type Memory struct {
	mu        sync.Mutex
	protocols map[string]*storedProtocol
	order     []string
	clock     Clock
	events    eventbus.Publisher
}

var _ Service = (*Memory)(nil)

// NewMemory creates an empty service. A nil clock means the system clock;
// events may be nil.
func NewMemory(clock Clock, events eventbus.Publisher) *Memory {
	if clock == nil {
		clock = systemClock{}
	}
	return &Memory{protocols: make(map[string]*storedProtocol), clock: clock, events: events}
}

func (m *Memory) Add(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error {
	if versionTag == "" {
		versionTag = DefaultVersionTag
	}
	if err := protocol.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.protocols[protocol.ID]; exists {
		m.mu.Unlock()
		return fault.Conflict("protocol %s already exists", protocol.ID)
	}
	m.protocols[protocol.ID] = &storedProtocol{
		ownerID:  protocol.OwnerID,
		versions: []storedVersion{m.version(protocol, versionTag)},
	}
	m.order = append(m.order, protocol.ID)
	m.mu.Unlock()

	return m.publish(ctx, &ProtocolAdded{ProtocolID: protocol.ID, OwnerID: protocol.OwnerID, VersionTag: versionTag})
}

func (m *Memory) AddVersion(ctx context.Context, protocol StudyProtocolSnapshot, versionTag string) error {
	if versionTag == "" {
		return fault.Validation("versionTag", "must not be blank")
	}
	if err := protocol.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	stored, err := m.lookup(protocol.ID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if stored.ownerID != protocol.OwnerID {
		m.mu.Unlock()
		return fault.Validation("ownerId", "protocol %s is owned by %s", protocol.ID, stored.ownerID)
	}
	for _, v := range stored.versions {
		if v.Tag == versionTag {
			m.mu.Unlock()
			return fault.Conflict("protocol %s already has a version tagged %q", protocol.ID, versionTag)
		}
	}
	stored.versions = append(stored.versions, m.version(protocol, versionTag))
	m.mu.Unlock()

	return m.publish(ctx, &ProtocolVersionAdded{ProtocolID: protocol.ID, VersionTag: versionTag})
}

func (m *Memory) GetBy(_ context.Context, protocolID string, versionTag *string) (StudyProtocolSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.lookup(protocolID)
	if err != nil {
		return StudyProtocolSnapshot{}, err
	}
	if versionTag == nil {
		return stored.versions[len(stored.versions)-1].snapshot, nil
	}
	for _, v := range stored.versions {
		if v.Tag == *versionTag {
			return v.snapshot, nil
		}
	}
	return StudyProtocolSnapshot{}, fault.ResourceNotFound("protocol %s has no version tagged %q", protocolID, *versionTag)
}

func (m *Memory) GetAllForOwner(_ context.Context, ownerID string) ([]StudyProtocolSnapshot, error) {
	if !ids.Valid(ownerID) {
		return nil, fault.Validation("ownerId", "%q is not a UUID", ownerID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []StudyProtocolSnapshot{}
	for _, id := range m.order {
		stored := m.protocols[id]
		if stored.ownerID == ownerID {
			out = append(out, stored.versions[len(stored.versions)-1].snapshot)
		}
	}
	return out, nil
}

func (m *Memory) GetVersionHistoryFor(_ context.Context, protocolID string) ([]ProtocolVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.lookup(protocolID)
	if err != nil {
		return nil, err
	}
	out := make([]ProtocolVersion, len(stored.versions))
	for i, v := range stored.versions {
		out[i] = v.ProtocolVersion
	}
	return out, nil
}

// lookup returns the stored protocol; m.mu must be held.
func (m *Memory) lookup(protocolID string) (*storedProtocol, error) {
	stored, ok := m.protocols[protocolID]
	if !ok {
		return nil, fault.ResourceNotFound("no protocol with id %s", protocolID)
	}
	return stored, nil
}

func (m *Memory) version(protocol StudyProtocolSnapshot, tag string) storedVersion {
	protocol.normalize()
	return storedVersion{
		ProtocolVersion: ProtocolVersion{Tag: tag, Date: m.clock.Now().UTC()},
		snapshot:        protocol,
	}
}

func (m *Memory) publish(ctx context.Context, e eventbus.Event) error {
	if m.events == nil {
		return nil
	}
	if err := m.events.Publish(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.TypeName(), err)
	}
	return nil
}
