// File: internal/runtime/runtime.go
// Package runtime
// Author: momentics <momentics@gmail.com>
//
// Runtime owns every per-core handle and wires the scheduler core
// together: core code receives its handle at goroutine start and never
// touches sibling state except through the shared atomics and rings. It
// also carries the control-plane surface (AddNormalCore,
// AddReservedCore, SetProfileCurve, Stats).

package runtime

import (
	"context"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/momentics/nfvworker/internal/affinity"
	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/bucket"
	"github.com/momentics/nfvworker/internal/clock"
	"github.com/momentics/nfvworker/internal/concurrency"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/corestate"
	"github.com/momentics/nfvworker/internal/migrate"
	"github.com/momentics/nfvworker/internal/nic"
	"github.com/momentics/nfvworker/internal/normalcore"
	"github.com/momentics/nfvworker/internal/pipeline"
	"github.com/momentics/nfvworker/internal/pool"
	"github.com/momentics/nfvworker/internal/reservedcore"
	"github.com/momentics/nfvworker/internal/scheduler"
	"github.com/momentics/nfvworker/internal/swqueue"
)

// busCapacity bounds every RuntimeBus / migration ring. Control traffic is
// a handful of messages per epoch, far below this.
const busCapacity = 256

// Option customizes Runtime construction.
type Option func(*Runtime)

// WithNic substitutes the NIC adapter (default: the bundled FakeAdapter).
func WithNic(adapter api.NicAdapter) Option { return func(r *Runtime) { r.nicAdapter = adapter } }

// WithNF substitutes the downstream NF (default: pipeline.NoopNF).
func WithNF(nf api.NFHandler) Option { return func(r *Runtime) { r.nf = nf } }

// WithClock substitutes the monotonic clock, letting tests drive epochs
// deterministically.
func WithClock(clk api.Clock) Option { return func(r *Runtime) { r.clk = clk } }

// WithLogger substitutes the logger.
func WithLogger(log *logrus.Logger) Option { return func(r *Runtime) { r.log = log } }

// WithRegistry substitutes the Prometheus registerer the metrics bind to.
func WithRegistry(reg prometheus.Registerer) Option { return func(r *Runtime) { r.promReg = reg } }

// WithAffinity enables OS-thread CPU pinning for core goroutines. Off by
// default so tests and development runs don't fight the host scheduler.
func WithAffinity(enabled bool) Option { return func(r *Runtime) { r.pinThreads = enabled } }

// Runtime is the assembled worker process: all cores, shared tables, the
// scheduler, and the control-plane surface.
type Runtime struct {
	cfg control.WorkerConfig
	log *logrus.Logger

	clk        api.Clock
	nicAdapter api.NicAdapter
	nf         api.NFHandler
	promReg    prometheus.Registerer
	pinThreads bool

	metrics   *control.MetricsRegistry
	cfgStore  *control.ConfigStore
	pktPool   *pool.PacketPool
	stats     *bucket.Stats
	buckets   *bucket.Table
	coreTable *corestate.Table
	swPool    *swqueue.Pool
	rbus      *swqueue.Bus
	mbus      *migrate.Bus
	ctrl      *scheduler.Ctrl
	exec      *concurrency.Executor

	mu       sync.Mutex
	normals  map[int]*normalcore.Core
	reserves map[int]*reservedcore.Core
	probes   map[string]func() any
	started  bool

	longEpochID atomic.Uint64
	fatal       atomic.Pointer[api.InvariantError]

	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc
}

// New builds a fully wired but not yet running Runtime from cfg.
func New(cfg control.WorkerConfig, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		cfg:      cfg,
		normals:  make(map[int]*normalcore.Core),
		reserves: make(map[int]*reservedcore.Core),
		probes:   make(map[string]func() any),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.clk == nil {
		r.clk = clock.NewMonotonic()
	}
	if r.promReg == nil {
		r.promReg = prometheus.NewRegistry()
	}
	if r.nf == nil {
		r.nf = pipeline.NoopNF{}
	}
	if r.nicAdapter == nil {
		r.nicAdapter = nic.NewFakeAdapter(cfg.MaxCoreSlots, cfg.LocalRingSize)
	}

	r.metrics = control.NewMetricsRegistry(r.promReg)
	r.cfgStore = control.NewConfigStore()
	r.pktPool = pool.NewPacketPool(cfg.Snaplen)
	r.stats = bucket.NewStats()
	r.buckets = bucket.NewTable()
	r.coreTable = corestate.NewTable(cfg.MaxCoreSlots)
	r.swPool = swqueue.NewPool(cfg.SwQueuePoolSize, cfg.SwQueueCapacity)
	r.exec = concurrency.NewExecutor(2)

	// Buses are sized for every possible core slot up front so later
	// add_normal_core/add_reserved_core calls never mutate ring maps that
	// running cores are polling.
	allSlots := make([]int, cfg.MaxCoreSlots)
	for i := range allSlots {
		allSlots[i] = i
	}
	r.rbus = swqueue.NewBus(allSlots, busCapacity)
	r.mbus = migrate.NewBus(allSlots, busCapacity)

	curve := make([]scheduler.ProfilePoint, 0, len(cfg.ProfileCurve))
	for _, p := range cfg.ProfileCurve {
		curve = append(curve, scheduler.ProfilePoint{FlowCount: p.FlowCount, MaxPps: p.MaxPps})
	}
	r.ctrl = scheduler.New(r.coreTable, r.stats, r.buckets, r.swPool, r.rbus, r.mbus,
		r.nicAdapter, r.clk, scheduler.NewProfileCurve(curve), cfg.LongEpochNs(),
		r.metrics, r.log)

	for i := 0; i < cfg.NumNormalCores; i++ {
		if err := r.addNormalCoreLocked(i, corestate.RoleNormal); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.NumReservedCores; i++ {
		if err := r.addReservedCoreLocked(cfg.NumNormalCores + i); err != nil {
			return nil, err
		}
	}

	r.registerDefaultProbes()
	return r, nil
}

func (r *Runtime) addNormalCoreLocked(coreID int, role corestate.Role) error {
	if coreID < 0 || coreID >= len(r.coreTable.Cores) {
		return api.ErrInvalidArgument
	}
	if _, dup := r.normals[coreID]; dup {
		return api.ErrAlreadyExists
	}
	if _, dup := r.reserves[coreID]; dup {
		return api.ErrAlreadyExists
	}
	ncfg := normalcore.DefaultConfig(coreID, coreID)
	ncfg.RssSize = r.cfg.RssSize
	ncfg.LocalRingCapacity = r.cfg.LocalRingSize
	ncfg.Burst = r.cfg.Burst
	ncfg.PullBatches = r.cfg.PullBatches
	ncfg.ShortEpochNs = r.cfg.ShortEpochNs()
	ncfg.EpochPacketThresh = r.cfg.EpochPacketThresh
	ncfg.LargeQueueThresh = r.cfg.LargeQueueThresh
	ncfg.BoostBusyThreshold = r.cfg.Burst * r.cfg.PullBatches

	core := normalcore.New(ncfg, r.nicAdapter, r.swPool, r.stats, r.buckets, r.clk, r.metrics)
	core.SetDirectory(r.ctrl)
	core.SetMigrateBus(r.mbus)
	core.SetDispatcher(pipeline.NewDispatcher(r.nf, r.metrics))

	r.coreTable.Cores[coreID].SetRole(role)
	r.ctrl.RegisterNormalCore(core)
	r.normals[coreID] = core
	if r.started {
		r.spawnNormal(core)
	}
	return nil
}

func (r *Runtime) addReservedCoreLocked(coreID int) error {
	if coreID < 0 || coreID >= len(r.coreTable.Cores) {
		return api.ErrInvalidArgument
	}
	if _, dup := r.normals[coreID]; dup {
		return api.ErrAlreadyExists
	}
	if _, dup := r.reserves[coreID]; dup {
		return api.ErrAlreadyExists
	}
	rcfg := reservedcore.DefaultConfig(coreID)
	rcfg.Burst = r.cfg.Burst
	core := reservedcore.New(rcfg, r.swPool, r.rbus, r.clk, r.metrics)
	core.SetDispatcher(pipeline.NewDispatcher(r.nf, r.metrics))

	r.coreTable.Cores[coreID].SetRole(corestate.RoleReserved)
	r.ctrl.RegisterReservedCore(coreID)
	r.reserves[coreID] = core
	if r.started {
		r.spawnReserved(core)
	}
	return nil
}

// AddNormalCore registers a standby Normal-capable core slot. Its
// receive loop starts immediately, but it stays in role Unused until the
// scheduler's placement pass activates it.
func (r *Runtime) AddNormalCore(coreID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addNormalCoreLocked(coreID, corestate.RoleUnused)
}

// AddReservedCore registers a new ReservedCore.
func (r *Runtime) AddReservedCore(coreID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addReservedCoreLocked(coreID)
}

// SetProfileCurve swaps the NF-profile curve live.
func (r *Runtime) SetProfileCurve(points []control.ProfileSample) error {
	if len(points) == 0 {
		return api.ErrInvalidArgument
	}
	curve := make([]scheduler.ProfilePoint, 0, len(points))
	for _, p := range points {
		if p.MaxPps == 0 {
			return api.ErrInvalidArgument
		}
		curve = append(curve, scheduler.ProfilePoint{FlowCount: p.FlowCount, MaxPps: p.MaxPps})
	}
	r.ctrl.SetProfile(scheduler.NewProfileCurve(curve))
	return nil
}

// Scheduler exposes the Ctrl for tests and the on-demand rebalance path.
func (r *Runtime) Scheduler() *scheduler.Ctrl { return r.ctrl }

// Nic exposes the wired NIC adapter (the FakeAdapter in self-contained
// runs, for packet injection).
func (r *Runtime) Nic() api.NicAdapter { return r.nicAdapter }

// PacketPool exposes the shared packet pool.
func (r *Runtime) PacketPool() *pool.PacketPool { return r.pktPool }

// ClearCore forwards a CommandClear-style request to the addressed
// NormalCore; SetBurst adjusts its live batch budget.
func (r *Runtime) ClearCore(coreID int) error {
	r.mu.Lock()
	core, ok := r.normals[coreID]
	r.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}
	core.Clear()
	return nil
}

// SetBurst adjusts one NormalCore's live batch budget.
func (r *Runtime) SetBurst(coreID, burst int) error {
	r.mu.Lock()
	core, ok := r.normals[coreID]
	r.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}
	core.SetBurst(burst)
	return nil
}

// Start performs initial bucket placement and launches every core plus the
// scheduler's long-epoch loop.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return api.ErrAlreadyExists
	}
	if err := r.ctrl.InitialPlacement(); err != nil {
		return err
	}

	ctx, r.cancel = context.WithCancel(ctx)
	for _, core := range r.normals {
		r.spawnNormalCtx(ctx, core)
	}
	for _, core := range r.reserves {
		r.spawnReservedCtx(ctx, core)
	}
	r.wg.Add(1)
	go r.schedulerLoop(ctx)
	r.runCtx = ctx
	r.started = true
	r.log.WithFields(logrus.Fields{
		"ncore": len(r.normals), "rcore": len(r.reserves),
		"sw_queues": r.swPool.Size(),
	}).Info("runtime started")
	return nil
}

// Cores added after Start share the runtime's lifetime context.
func (r *Runtime) spawnNormal(core *normalcore.Core)     { r.spawnNormalCtx(r.runCtx, core) }
func (r *Runtime) spawnReserved(core *reservedcore.Core) { r.spawnReservedCtx(r.runCtx, core) }

func (r *Runtime) spawnNormalCtx(ctx context.Context, core *normalcore.Core) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pin(core.ID())
		core.Run(ctx)
	}()
}

func (r *Runtime) spawnReservedCtx(ctx context.Context, core *reservedcore.Core) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pin(core.ID())
		core.Run(ctx)
	}()
}

func (r *Runtime) pin(coreID int) {
	if !r.pinThreads {
		return
	}
	goruntime.LockOSThread()
	if err := affinity.New().Pin(coreID); err != nil {
		r.log.WithFields(logrus.Fields{"core": coreID, "error": err}).
			Warn("cpu pinning failed, continuing unpinned")
	}
}

// schedulerLoop is the Scheduler's dedicated thread: it ticks the
// long epoch, ages core liveness, and verifies global invariants after
// every committed epoch.
func (r *Runtime) schedulerLoop(ctx context.Context) {
	defer r.wg.Done()
	r.pin(r.cfg.MaxCoreSlots - 1)
	ticker := clock.NewEpochTicker(r.clk, r.cfg.ShortEpochNs(), r.cfg.LongEpochNs())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !ticker.LongEpochDue() {
			time.Sleep(time.Duration(r.cfg.ShortEpochNs()))
			continue
		}
		r.ctrl.TickLiveness()
		r.ctrl.RunLongEpoch()
		ticker.CloseLongEpoch()
		r.longEpochID.Add(1)

		// Invariant verification runs off the control thread; a violation
		// is fatal for the scheduler but data cores keep the last committed
		// assignment.
		_ = r.exec.Submit(func() {
			if err := r.ctrl.CheckInvariants(); err != nil {
				if r.fatal.CompareAndSwap(nil, err) {
					r.log.WithField("context", err.Context).
						Error("invariant violation detected")
					r.cancel()
				}
			}
		})
	}
}

// FatalInvariant returns the invariant violation that stopped the
// scheduler, if any.
func (r *Runtime) FatalInvariant() *api.InvariantError { return r.fatal.Load() }

// Shutdown signals every core's disabled flag, waits for each to report
// drained, then joins all goroutines.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	normals := make([]*normalcore.Core, 0, len(r.normals))
	for _, c := range r.normals {
		normals = append(normals, c)
	}
	reserves := make([]*reservedcore.Core, 0, len(r.reserves))
	for _, c := range r.reserves {
		reserves = append(reserves, c)
	}
	r.mu.Unlock()

	for _, c := range normals {
		c.Disable()
	}
	for _, c := range reserves {
		c.Disable()
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		drained := true
		for _, c := range normals {
			if !c.Drained() {
				drained = false
			}
		}
		for _, c := range reserves {
			if !c.Drained() {
				drained = false
			}
		}
		if drained {
			break
		}
		time.Sleep(time.Millisecond)
	}
	r.cancel()
	r.wg.Wait()
	r.exec.Close()
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
	r.log.Info("runtime stopped")
}

// Run starts the runtime, blocks until ctx is canceled or a fatal
// invariant violation occurs, shuts down, and maps the outcome to a
// process exit code.
func (r *Runtime) Run(ctx context.Context) api.ExitCode {
	if err := r.Start(ctx); err != nil {
		r.log.WithField("error", err).Error("runtime start failed")
		return api.ExitNicInitError
	}
	<-r.runCtx.Done()
	r.Shutdown()
	if err := r.FatalInvariant(); err != nil {
		return api.ExitInvariantViolation
	}
	return api.ExitNormal
}
