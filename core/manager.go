package core

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

const defaultMaxRegions = 128
const defaultDirMode = os.FileMode(0o755)

// Manager owns the regions a process has initialized, as a library
// context with injected ownership rather than a bare global table.
// Multiple independent Managers may coexist in one process (useful for
// isolating test binaries), each bounded by its own maxRegions.
type Manager struct {
	mu         sync.Mutex
	regions    []*Region
	maxRegions int
	dirMode    os.FileMode
	logger     *zap.SugaredLogger
}

// ManagerOption configures a Manager via the functional-options pattern.
type ManagerOption func(*Manager)

// WithMaxRegions overrides the default cap of 128 regions per Manager.
func WithMaxRegions(n int) ManagerOption {
	return func(m *Manager) { m.maxRegions = n }
}

// WithLogger overrides the manager's diagnostic sink. Regions it
// initializes inherit this logger.
func WithLogger(l *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithDirMode overrides the permission mode used when a region directory
// is created lazily on first Init.
func WithDirMode(mode os.FileMode) ManagerOption {
	return func(m *Manager) { m.dirMode = mode }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{maxRegions: defaultMaxRegions, dirMode: defaultDirMode, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init allocates a fresh region id, creates its directory, and registers
// it. Fails only on unrecoverable filesystem error or when the
// process-local region limit is reached.
func (m *Manager) Init(directory string) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.regions) >= m.maxRegions {
		return nil, newErr(CodeUsage, "Init", fmt.Errorf("%w: limit is %d", ErrTooManyRegions, m.maxRegions))
	}

	id := len(m.regions)
	r, err := newRegion(id, directory, m.dirMode, m.logger)
	if err != nil {
		return nil, err
	}

	m.regions = append(m.regions, r)
	return r, nil
}
