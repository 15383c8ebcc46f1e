package litterbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/pollcache"
)

// DeviceAPI is the subset of *cloud.Session the controller uses.
type DeviceAPI interface {
	Connect(ctx context.Context, creds cloud.Credentials) error
	GetProperties(ctx context.Context, iotID string) (cloud.Properties, error)
	SetProperties(ctx context.Context, iotID string, items map[string]any) error
	ListDevices(ctx context.Context, pageNo, pageSize int) ([]cloud.Device, error)
}

// UsageEvent is one recorded visit to the litter box.
type UsageEvent struct {
	Time       time.Time `json:"time"`
	WorkStatus int       `json:"work_status"`
}

// UsageSource loads recent usage events for a device.
type UsageSource interface {
	UsageEvents(ctx context.Context, iotID string, limit int) ([]UsageEvent, error)
}

// Logger is the logging interface used by Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures a Controller.
type Config struct {
	IoTID       string
	Credentials cloud.Credentials

	// DeviceName skips the device list lookup when set.
	DeviceName string

	// Interval is the Start loop period. Default: 30 seconds.
	Interval time.Duration

	PropertiesRefreshAfter time.Duration
	PropertiesDiscardAfter time.Duration
	UsageRefreshAfter      time.Duration
	UsageDiscardAfter      time.Duration

	Usage      UsageSource
	UsageLimit int

	// Now overrides time.Now for the caches.
	Now func() time.Time
}

// DefaultConfig returns the standard polling windows for iotID.
func DefaultConfig(iotID string, creds cloud.Credentials) Config {
	return Config{
		IoTID:                  iotID,
		Credentials:            creds,
		Interval:               30 * time.Second,
		PropertiesRefreshAfter: 0,
		PropertiesDiscardAfter: 30 * time.Minute,
		UsageRefreshAfter:      30 * time.Minute,
		UsageDiscardAfter:      4 * time.Hour,
		UsageLimit:             50,
	}
}

// Status summarises the controller for health reporting.
type Status struct {
	Available  bool      `json:"available"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Failures   int       `json:"consecutive_failures"`
	CacheZone  string    `json:"properties_cache"`
}

// Controller polls and controls one litter box.
//
// Thread Safety:
//   - All methods are safe for concurrent use. A refresh that overlaps a
//     SetProperty may overwrite the optimistic patch with device data.
type Controller struct {
	api DeviceAPI
	cfg Config

	props *pollcache.Cache[cloud.Properties]
	usage *pollcache.Cache[[]UsageEvent]

	mu          sync.RWMutex
	snapshot    Snapshot
	hasSnapshot bool
	lastUsage   int64
	lastUpdate  time.Time
	lastErr     error
	failures    int
	deviceName  string
	// nameMissing stops refresh-time lookups once the account list lacks
	// the device.
	nameMissing bool

	// nameMu serializes device list lookups.
	nameMu sync.Mutex

	listenersMu      sync.RWMutex
	updateListeners  []func(Snapshot)
	failureListeners []func(error)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewController creates a Controller.
//
// Parameters:
//   - api: Cloud session (usually *cloud.Session)
//   - cfg: Device id, credentials and cache windows
//
// Returns:
//   - *Controller: Ready for Refresh or Start
func NewController(api DeviceAPI, cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.UsageLimit <= 0 {
		cfg.UsageLimit = 50
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Controller{
		api:        api,
		cfg:        cfg,
		deviceName: cfg.DeviceName,
		done:       make(chan struct{}),
	}
	c.props = pollcache.New[cloud.Properties](cfg.PropertiesRefreshAfter, cfg.PropertiesDiscardAfter,
		pollcache.WithClock(cfg.Now),
		pollcache.WithStaleHandler(func(err error) {
			c.logWarn("serving cached device properties", "error", err)
		}))
	c.usage = pollcache.New[[]UsageEvent](cfg.UsageRefreshAfter, cfg.UsageDiscardAfter,
		pollcache.WithClock(cfg.Now),
		pollcache.WithStaleHandler(func(err error) {
			c.logWarn("serving cached usage history", "error", err)
		}))
	return c
}

// SetLogger sets the logger for this controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IoTID returns the controlled device's iotId.
func (c *Controller) IoTID() string { return c.cfg.IoTID }

// OnUpdate registers fn to receive every published snapshot.
func (c *Controller) OnUpdate(fn func(Snapshot)) {
	c.listenersMu.Lock()
	c.updateListeners = append(c.updateListeners, fn)
	c.listenersMu.Unlock()
}

// OnFailure registers fn to receive every refresh failure.
func (c *Controller) OnFailure(fn func(error)) {
	c.listenersMu.Lock()
	c.failureListeners = append(c.failureListeners, fn)
	c.listenersMu.Unlock()
}

// Snapshot returns the last published snapshot.
//
// Returns:
//   - Snapshot: Last published state
//   - bool: false if no refresh has succeeded yet
func (c *Controller) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

// Available reports whether the last refresh succeeded.
func (c *Controller) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasSnapshot && c.lastErr == nil
}

// Status returns availability details.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		Available:  c.hasSnapshot && c.lastErr == nil,
		LastUpdate: c.lastUpdate,
		Failures:   c.failures,
		CacheZone:  c.props.Zone().String(),
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Refresh runs one update cycle.
//
// Returns:
//   - Snapshot: The newly published snapshot
//   - error: ErrUpdateFailed wrapping the cause (cloud.ErrAuth,
//     cloud.ErrConnection or ErrDecode)
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	if err := c.api.Connect(ctx, c.cfg.Credentials); err != nil {
		return Snapshot{}, c.fail(err)
	}

	props, err := c.props.GetOrFetch(ctx, func(ctx context.Context) (cloud.Properties, error) {
		return c.api.GetProperties(ctx, c.cfg.IoTID)
	})
	if err != nil {
		return Snapshot{}, c.fail(err)
	}

	snap, err := Decode(props)
	if err != nil {
		return Snapshot{}, c.fail(err)
	}

	c.mu.Lock()
	usageChanged := c.lastUsage != snap.LastUsage
	c.lastUsage = snap.LastUsage
	c.snapshot = snap
	c.hasSnapshot = true
	c.lastUpdate = c.cfg.Now()
	c.lastErr = nil
	c.failures = 0
	c.mu.Unlock()

	if usageChanged {
		c.usage.MarkStale()
		c.logDebug("last usage changed", "last_usage", snap.LastUsage)
	}

	c.resolveName(ctx)
	c.publish(snap)
	return snap, nil
}

// resolveName looks the device name up once the session is known good.
func (c *Controller) resolveName(ctx context.Context) {
	c.mu.RLock()
	skip := c.deviceName != "" || c.nameMissing
	c.mu.RUnlock()
	if skip {
		return
	}
	if _, err := c.lookupName(ctx); err != nil {
		c.logDebug("device name lookup failed", "error", err)
	}
}

func (c *Controller) fail(cause error) error {
	err := fmt.Errorf("%w: %w", ErrUpdateFailed, cause)

	c.mu.Lock()
	c.lastErr = err
	c.failures++
	failures := c.failures
	c.mu.Unlock()

	c.logError("litter box update failed", "error", cause, "consecutive_failures", failures)

	c.listenersMu.RLock()
	listeners := append(([]func(error))(nil), c.failureListeners...)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
	return err
}

func (c *Controller) publish(snap Snapshot) {
	c.listenersMu.RLock()
	listeners := append(([]func(Snapshot))(nil), c.updateListeners...)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// SetProperty writes a property, patches the snapshot and notifies listeners.
//
// Parameters:
//   - p: Writable property (see ParseProperty)
//   - value: Raw value; switches use 1 and 0
//
// Returns:
//   - error: ErrUnknownProperty, or a cloud error from Connect or the write
func (c *Controller) SetProperty(ctx context.Context, p Property, value int) error {
	if _, ok := propertySetters[p]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, string(p))
	}
	if err := c.api.Connect(ctx, c.cfg.Credentials); err != nil {
		return err
	}
	if err := c.api.SetProperties(ctx, c.cfg.IoTID, map[string]any{string(p): value}); err != nil {
		return err
	}

	c.logInfo("property set", "property", string(p), "value", value)

	c.mu.Lock()
	if !c.hasSnapshot {
		c.mu.Unlock()
		return nil
	}
	p.apply(&c.snapshot, value)
	snap := c.snapshot
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// SetSwitch turns a switch property on or off.
func (c *Controller) SetSwitch(ctx context.Context, p Property, on bool) error {
	if !p.IsSwitch() {
		return fmt.Errorf("%w: %q is not a switch", ErrUnknownProperty, string(p))
	}
	value := 0
	if on {
		value = 1
	}
	return c.SetProperty(ctx, p, value)
}

// InvokeService triggers a clean, level or dump cycle.
//
// Returns:
//   - error: ErrUnknownService (no network call made), or a cloud error
func (c *Controller) InvokeService(ctx context.Context, name string) error {
	svc, code, err := ParseService(name)
	if err != nil {
		return err
	}
	c.logInfo("invoking service", "service", string(svc))
	return c.SetProperty(ctx, DeviceControl, code)
}

// Name returns the device name. It is resolved from the account device
// list on the first successful refresh, or taken from Config.DeviceName.
// Name never calls the cloud and returns "" until resolved.
func (c *Controller) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceName
}

// lookupName finds the device in the account device list. The session
// must already be connected.
func (c *Controller) lookupName(ctx context.Context) (string, error) {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()

	if name := c.Name(); name != "" {
		return name, nil
	}
	devices, err := c.api.ListDevices(ctx, 1, 20)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range devices {
		if d.IoTID == c.cfg.IoTID {
			c.deviceName = d.DeviceName
			c.nameMissing = false
			return c.deviceName, nil
		}
	}
	c.nameMissing = true
	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, c.cfg.IoTID)
}

// UsageHistory returns recent usage events through the usage cache.
// It returns nil when no usage source is configured.
func (c *Controller) UsageHistory(ctx context.Context) ([]UsageEvent, error) {
	if c.cfg.Usage == nil {
		return nil, nil
	}
	return c.usage.GetOrFetch(ctx, func(ctx context.Context) ([]UsageEvent, error) {
		return c.cfg.Usage.UsageEvents(ctx, c.cfg.IoTID, c.cfg.UsageLimit)
	})
}

// Start runs Refresh immediately and then every Interval until ctx is
// cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.pollLoop(ctx)
}

// Stop halts the poll loop. Safe to call multiple times.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.refreshOnce(ctx)
		}
	}
}

func (c *Controller) refreshOnce(ctx context.Context) {
	// Errors are already logged and delivered to failure listeners.
	if _, err := c.Refresh(ctx); err != nil && errors.Is(err, context.Canceled) {
		c.logDebug("refresh cancelled")
	}
}

func (c *Controller) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Controller) logDebug(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (c *Controller) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Controller) logError(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
