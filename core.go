package noteapi

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Silent-Watcher/note-app-api/abuse"
	"github.com/Silent-Watcher/note-app-api/cache"
	"github.com/Silent-Watcher/note-app-api/executor"
	"github.com/Silent-Watcher/note-app-api/internal/audit"
	"github.com/Silent-Watcher/note-app-api/jwt"
	"github.com/Silent-Watcher/note-app-api/session"
)

// Deps are the external handles the core is built on. Store takes
// precedence over Mongo; one of the two must be set. Redis is required.
type Deps struct {
	// Store overrides the default Mongo-backed token store. Mainly for
	// tests and in-memory development setups.
	Store session.Store
	// Mongo is the database holding the refresh-token collection.
	Mongo *mongo.Database
	// Redis backs the abuse-defense counters and block flags.
	Redis redis.UniversalClient
	// Logger defaults to logrus.StandardLogger.
	Logger logrus.FieldLogger
	// Audit receives security events when Config.Audit.Enabled is set.
	Audit AuditSink
	// Clock overrides time.Now for the rotation engine. Tests only.
	Clock func() time.Time
}

// Core owns every component of the session-security layer: the two circuit
// breakers, the rotation engine, and the login/captcha abuse guards. Build
// it once at startup and share it; all methods of its components are safe
// for concurrent use.
type Core struct {
	Engine  *Engine
	Login   *abuse.Guard
	Captcha *abuse.Guard
	Cache   *cache.Atomic
	Metrics *Metrics

	storeBreaker *executor.Breaker
	cacheBreaker *executor.Breaker
	dispatcher   *audit.Dispatcher
	log          logrus.FieldLogger
}

// New validates cfg, fills in defaults, and wires the component graph.
func New(cfg Config, deps Deps) (*Core, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil && deps.Mongo == nil {
		return nil, errors.New("noteapi: either Deps.Store or Deps.Mongo is required")
	}
	if deps.Redis == nil {
		return nil, errors.New("noteapi: Deps.Redis is required")
	}

	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	metrics := NewMetrics(cfg.Metrics)
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, deps.Audit)

	c := &Core{
		Metrics:    metrics,
		dispatcher: dispatcher,
		log:        log,
	}

	storeCfg := cfg.Breaker.Store
	storeCfg.Name = "mongo"
	storeCfg.Logger = log
	storeCfg.OnStateChange = c.onBreakerChange
	c.storeBreaker = executor.NewBreaker(storeCfg)

	cacheCfg := cfg.Breaker.Cache
	cacheCfg.Name = "redis"
	cacheCfg.Logger = log
	cacheCfg.OnStateChange = c.onBreakerChange
	c.cacheBreaker = executor.NewBreaker(cacheCfg)

	c.Cache = cache.New(deps.Redis, c.cacheBreaker)
	c.Login = c.newGuard(cfg.Abuse.Login)
	c.Captcha = c.newGuard(cfg.Abuse.Captcha)

	store := deps.Store
	if store == nil {
		store = session.NewMongoStore(deps.Mongo, cfg.Session.Collection, c.storeBreaker)
	}

	tokens, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, err
	}
	c.Engine = newEngine(cfg.Session, store, tokens, log, dispatcher, metrics, deps.Clock)

	return c, nil
}

func (c *Core) newGuard(policy abuse.Policy) *abuse.Guard {
	g := abuse.NewGuard(c.Cache, policy, c.log)
	domain := policy.Name
	g.OnFailOpen = func(string) {
		c.Metrics.Inc(MetricCacheFailOpen)
	}
	g.OnBlock = func(identifier string, failures int64) {
		c.Metrics.Inc(MetricAbuseBlockApplied)
		c.dispatcher.Emit(context.Background(), audit.Event{
			Timestamp: time.Now().UTC(),
			EventType: audit.TypeIPBlocked,
			IP:        identifier,
			Metadata:  map[string]string{"domain": domain},
		})
	}
	return g
}

func (c *Core) onBreakerChange(name string, from, to executor.State) {
	switch to {
	case executor.Open:
		c.Metrics.Inc(MetricBreakerOpened)
	case executor.Closed:
		c.Metrics.Inc(MetricBreakerClosed)
	}
	c.dispatcher.Emit(context.Background(), audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.TypeCircuitState,
		Metadata: map[string]string{
			"dependency": name,
			"from":       from.String(),
			"to":         to.String(),
		},
	})
}

// StoreBreakerState exposes the document-store breaker state for health
// endpoints.
func (c *Core) StoreBreakerState() executor.State {
	return c.storeBreaker.State()
}

// CacheBreakerState exposes the cache breaker state for health endpoints.
func (c *Core) CacheBreakerState() executor.State {
	return c.cacheBreaker.State()
}

// Close drains and stops the audit dispatcher. The breakers and guards hold
// no background resources.
func (c *Core) Close() {
	c.dispatcher.Close()
}
