package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the single writer of device state. It wraps a Repository with
// an in-memory cache and serialises mutations per device.
//
// All public methods are thread-safe. Returned devices are deep copies.
type Registry struct {
	repo Repository

	cache       map[string]*Device
	cacheLoaded bool
	cacheMu     sync.RWMutex

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a new device registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		locks:  make(map[string]*sync.Mutex),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock overrides the time source used for updated_at stamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}
	r.cacheLoaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.storeCached(d)
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	if devices, ok := r.fromCache(func(*Device) bool { return true }); ok {
		return devices, nil
	}
	return r.repo.List(ctx)
}

// ListWithAddress retrieves devices that have a controller address.
func (r *Registry) ListWithAddress(ctx context.Context) ([]Device, error) {
	if devices, ok := r.fromCache((*Device).HasHardware); ok {
		return devices, nil
	}
	return r.repo.ListWithAddress(ctx)
}

// Create validates and persists a new device, generating an ID if needed.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Status == nil {
		d.Status = Status{}
	}
	if err := ValidateDevice(d); err != nil {
		return err
	}

	now := r.now().UTC().Truncate(time.Second)
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.storeCached(d)

	r.logger.Info("device created", "id", d.ID, "name", d.Name, "type", d.Type)
	return nil
}

// ApplyTransition sets is_on and merges patch into the device status,
// returning the device before and after the change.
//
// The patch is validated against the device type's status schema before
// anything is written. Keys absent from the patch are preserved.
func (r *Registry) ApplyTransition(ctx context.Context, id string, isOn bool, patch StatusPatch) (old, updated *Device, err error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var status Status
	if patch != nil {
		status = patch.Status()
	}
	if err := ValidateStatus(current.Type, status); err != nil {
		return nil, nil, err
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	old, updated, err = r.repo.ApplyTransition(ctx, id, isOn, status, r.now())
	if err != nil {
		return nil, nil, err
	}
	r.storeCached(updated)

	r.logger.Debug("device transition applied", "id", id, "was_on", old.IsOn, "is_on", updated.IsOn)
	return old, updated.DeepCopy(), nil
}

// SetOnline records whether the given devices answered their last poll.
func (r *Registry) SetOnline(ctx context.Context, ids []string, online bool) error {
	if len(ids) == 0 {
		return nil
	}
	unlock := r.lockAll(ids)
	defer unlock()

	now := r.now()
	if err := r.repo.SetOnline(ctx, ids, online, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	for _, id := range ids {
		if cached, ok := r.cache[id]; ok && cached.IsOnline != online {
			next := cached.DeepCopy()
			next.IsOnline = online
			next.UpdatedAt = now.UTC().Truncate(time.Second)
			r.cache[id] = next
		}
	}
	r.cacheMu.Unlock()
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// lockAll takes the per-device locks for ids in sorted order so it cannot
// deadlock with another caller holding an overlapping set.
func (r *Registry) lockAll(ids []string) (unlock func()) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		l := r.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (r *Registry) storeCached(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

// fromCache returns matching devices sorted like the repository would,
// or false when the cache has not been fully loaded yet.
func (r *Registry) fromCache(match func(*Device) bool) ([]Device, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if !r.cacheLoaded {
		return nil, false
	}
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if match(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, true
}
