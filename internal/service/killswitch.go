package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/config"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
)

// Control 可被熔断的写操作类别
type Control string

const (
	ControlWriteback Control = "writeback"
	ControlLabels    Control = "labels"
)

// Kill-switch decision reasons, a closed set. Precedence is fixed; any
// uncertainty about store state fails closed.
const (
	KSEnabled              = "enabled"
	KSEnvGlobalKill        = "env_global_kill"
	KSEnvTenantKill        = "env_tenant_kill"
	KSStoreErrorFailClosed = "store_error_fail_closed"
	KSStoreStaleFailClosed = "store_stale_fail_closed"
	KSStoreGlobalDisabled  = "store_global_disabled"
	KSStoreTenantDisabled  = "store_tenant_disabled"
)

// KillSwitchDecision is the outcome for one (tenant, control) pair.
type KillSwitchDecision struct {
	Enabled bool
	Reason  string
}

// KillSwitchStore reads the persisted enable state.
type KillSwitchStore interface {
	GetGlobalControls(ctx context.Context) (repository.GlobalControls, error)
	GetTenantControls(ctx context.Context, tenantID string) (repository.TenantControls, error)
}

type globalSnapshot struct {
	controls  repository.GlobalControls
	err       error
	fetchedAt time.Time
}

type tenantSnapshot struct {
	controls  repository.TenantControls
	err       error
	fetchedAt time.Time
}

// KillSwitchService computes layered enable/disable decisions. All caches
// are explicit fields on the instance; one service is constructed per
// worker process and shared by reference.
type KillSwitchService struct {
	store      KillSwitchStore
	logger     *zap.Logger
	refresh    time.Duration
	envGlobal  bool
	envTenants map[string]struct{}
	now        func() time.Time

	globalMu sync.RWMutex
	global   globalSnapshot

	tenantMu sync.Mutex
	tenants  map[string]tenantSnapshot

	lastMu   sync.Mutex
	lastSeen map[string]KillSwitchDecision
}

func NewKillSwitchService(store KillSwitchStore, cfg config.KillSwitchConfig, logger *zap.Logger) *KillSwitchService {
	s := &KillSwitchService{
		store:      store,
		logger:     logger,
		refresh:    cfg.RefreshInterval,
		envGlobal:  cfg.GlobalKill,
		envTenants: make(map[string]struct{}, len(cfg.TenantKillList)),
		now:        time.Now,
		tenants:    make(map[string]tenantSnapshot),
		lastSeen:   make(map[string]KillSwitchDecision),
	}
	for _, t := range cfg.TenantKillList {
		s.envTenants[t] = struct{}{}
	}
	return s
}

// Start refreshes global state eagerly, then on the fixed interval until
// ctx is done. Call in a goroutine.
func (s *KillSwitchService) Start(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Kill switch refresh loop stopped")
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh re-reads global controls on demand.
func (s *KillSwitchService) Refresh(ctx context.Context) {
	controls, err := s.store.GetGlobalControls(ctx)
	s.globalMu.Lock()
	s.global = globalSnapshot{controls: controls, err: err, fetchedAt: s.now()}
	s.globalMu.Unlock()

	if err != nil {
		s.logger.Warn("Kill switch global refresh failed, failing closed", zap.Error(err))
	}
}

// Decision computes the layered decision for one (tenant, control) pair.
// Precedence, strictly: env global kill > env tenant kill-list > stale or
// errored global store state (fail closed) > store global disabled >
// errored tenant store state (fail closed) > store tenant disabled >
// enabled.
func (s *KillSwitchService) Decision(ctx context.Context, tenantID string, control Control) KillSwitchDecision {
	d := s.decide(ctx, tenantID, control)
	s.logTransition(tenantID, control, d)
	return d
}

func (s *KillSwitchService) decide(ctx context.Context, tenantID string, control Control) KillSwitchDecision {
	if s.envGlobal {
		return KillSwitchDecision{Enabled: false, Reason: KSEnvGlobalKill}
	}
	if _, killed := s.envTenants[tenantID]; killed {
		return KillSwitchDecision{Enabled: false, Reason: KSEnvTenantKill}
	}

	s.globalMu.RLock()
	global := s.global
	s.globalMu.RUnlock()

	if global.err != nil {
		return KillSwitchDecision{Enabled: false, Reason: KSStoreErrorFailClosed}
	}
	if global.fetchedAt.IsZero() || s.now().Sub(global.fetchedAt) > s.refresh {
		// Startup before the first refresh lands here too: fail closed on
		// any uncertainty.
		return KillSwitchDecision{Enabled: false, Reason: KSStoreStaleFailClosed}
	}
	if !controlEnabled(global.controls, control) {
		return KillSwitchDecision{Enabled: false, Reason: KSStoreGlobalDisabled}
	}

	tenant := s.tenantControls(ctx, tenantID)
	if tenant.err != nil {
		return KillSwitchDecision{Enabled: false, Reason: KSStoreErrorFailClosed}
	}
	if override := tenantOverride(tenant.controls, control); override != nil && !*override {
		return KillSwitchDecision{Enabled: false, Reason: KSStoreTenantDisabled}
	}

	return KillSwitchDecision{Enabled: true, Reason: KSEnabled}
}

// tenantControls returns the cached tenant snapshot, refetching when the
// entry is missing or older than the refresh interval.
func (s *KillSwitchService) tenantControls(ctx context.Context, tenantID string) tenantSnapshot {
	s.tenantMu.Lock()
	snap, ok := s.tenants[tenantID]
	fresh := ok && s.now().Sub(snap.fetchedAt) <= s.refresh
	s.tenantMu.Unlock()
	if fresh {
		return snap
	}

	controls, err := s.store.GetTenantControls(ctx, tenantID)
	snap = tenantSnapshot{controls: controls, err: err, fetchedAt: s.now()}

	s.tenantMu.Lock()
	s.tenants[tenantID] = snap
	s.tenantMu.Unlock()
	return snap
}

// logTransition logs a decision at most once per (tenant, control)
// transition, and only the disabled case: a healthy enabled state is not
// alert-worthy.
func (s *KillSwitchService) logTransition(tenantID string, control Control, d KillSwitchDecision) {
	key := tenantID + ":" + string(control)

	s.lastMu.Lock()
	prev, seen := s.lastSeen[key]
	s.lastSeen[key] = d
	s.lastMu.Unlock()

	if seen && prev == d {
		return
	}
	if d.Enabled {
		return
	}

	metrics.KillSwitchDenied.WithLabelValues(string(control), d.Reason).Inc()
	s.logger.Warn("Kill switch disabled control",
		zap.String("tenant_id", tenantID),
		zap.String("control", string(control)),
		zap.String("reason", d.Reason),
	)
}

func controlEnabled(c repository.GlobalControls, control Control) bool {
	switch control {
	case ControlWriteback:
		return c.WritebackEnabled
	case ControlLabels:
		return c.LabelsEnabled
	default:
		return false
	}
}

func tenantOverride(c repository.TenantControls, control Control) *bool {
	switch control {
	case ControlWriteback:
		return c.WritebackEnabled
	case ControlLabels:
		return c.LabelsEnabled
	default:
		return nil
	}
}
