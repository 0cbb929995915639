package main

import (
	"database/sql"
	"time"

	"tableservice-platform/internal/abuse"
	"tableservice-platform/internal/audit"
	"tableservice-platform/internal/auth"
	"tableservice-platform/internal/calls"
	"tableservice-platform/internal/config"
	"tableservice-platform/internal/httpapi"
	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/notify"
	"tableservice-platform/internal/realtime"
	"tableservice-platform/internal/reporting"
	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/tables"
)

// stores are the persistence ports of the service.
type stores struct {
	Calls     calls.Repository
	Tables    tables.Directory
	Silences  silence.Repository
	Audit     audit.Repository
	Blocks    abuse.OriginBlockSource
	Endpoints notify.EndpointSource
}

func postgresStores(db *sql.DB) stores {
	return stores{
		Calls:     calls.NewPostgresRepo(db),
		Tables:    tables.NewPostgresDirectory(db),
		Silences:  silence.NewPostgresRepo(db),
		Audit:     audit.NewPostgresRepo(db),
		Blocks:    abuse.NewPostgresOriginBlocks(db),
		Endpoints: notify.NewPostgresEndpoints(db),
	}
}

// deps are the optional outer integrations chosen from config in main.
type deps struct {
	Counter      abuse.RateCounter
	Broadcasters []realtime.Broadcaster
	Mirror       realtime.Mirror
	Stream       realtime.Stream
	Provider     notify.Provider
	Metrics      *metrics.Metrics
}

type app struct {
	handlers   httpapi.Handlers
	silences   *silence.Service
	dispatcher *realtime.Dispatcher
}

func newApp(cfg config.Config, authManager *auth.Manager, st stores, d deps) *app {
	auditSvc := audit.NewService(st.Audit)

	hub := realtime.NewHub(64)
	hub.Metrics = d.Metrics
	dispatcher := realtime.NewDispatcher(append([]realtime.Broadcaster{hub}, d.Broadcasters...)...)
	dispatcher.Mirror = d.Mirror
	dispatcher.Stream = d.Stream
	dispatcher.Metrics = d.Metrics
	if d.Provider != nil && st.Endpoints != nil {
		push := notify.NewPushSender(st.Endpoints, d.Provider, cfg.Push.Timeout)
		push.Metrics = d.Metrics
		dispatcher.Push = push
	}

	sil := silence.NewService(st.Silences)
	sil.Publisher = dispatcher
	sil.Audit = auditSvc
	sil.Metrics = d.Metrics
	sil.AutoDuration = cfg.Abuse.AutoSilenceDuration

	counter := d.Counter
	if counter == nil {
		counter = abuse.NewHistoryCounter(st.Calls, cfg.Abuse.Window)
	}
	blocks := st.Blocks
	if cfg.Abuse.OriginCacheTTL > 0 {
		blocks = abuse.NewCachedOriginBlocks(blocks, cfg.Abuse.OriginCacheTTL)
	}
	guard := abuse.NewGuard(blocks, counter, sil, abuse.Policy{
		Threshold: cfg.Abuse.CallThreshold,
		Window:    cfg.Abuse.Window,
	})
	guard.Audit = auditSvc

	mgr := calls.NewManager(st.Calls, st.Tables)
	mgr.Guard = guard
	mgr.Silences = sil
	mgr.Dispatcher = dispatcher
	mgr.Audit = auditSvc
	mgr.Metrics = d.Metrics
	mgr.SingleActiveCall = cfg.Abuse.SingleActiveCall

	return &app{
		handlers: httpapi.Handlers{
			Auth:     authManager,
			Calls:    mgr,
			Tables:   st.Tables,
			Silences: sil,
			Hub:      hub,
			Reports:  reporting.NewService(st.Calls),
			Now:      time.Now,
		},
		silences:   sil,
		dispatcher: dispatcher,
	}
}
