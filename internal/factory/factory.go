package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"otc-service/internal/audit"
	"otc-service/internal/bucketing"
	"otc-service/internal/client"
	"otc-service/internal/config"
	"otc-service/internal/encryption"
	"otc-service/internal/hashing"
	"otc-service/internal/notify"
	"otc-service/internal/repository"
	"otc-service/internal/repository/memory"
	"otc-service/internal/repository/mongodb"
	redisrepo "otc-service/internal/repository/redis"
	"otc-service/internal/repository/scylla"
	"otc-service/internal/service"
	"otc-service/internal/tls"
	"otc-service/internal/token"
	"otc-service/internal/util"
)

const auditBuffer = 1024

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	mongoClient      *client.MongoClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	jwtManager        *token.JWTManager

	// Repositories
	credentialStore   repository.CredentialStore
	accountRepository repository.AccountRepository
	rateLimiter       repository.RateLimiter

	dispatcher     notify.Dispatcher
	auditTrail     *audit.Trail
	auditQueue     *audit.AsyncRecorder
	serviceFactory *service.ServiceFactory

	stopJanitor context.CancelFunc
	closeOnce   sync.Once
}

// NewFactory wires every dependency named by cfg. Storage backends are mandatory; audit
// sinks are optional and, outside production, skipped when they cannot be reached.
func NewFactory(ctx context.Context, cfg *config.Config) (*Factory, error) {
	f := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(cfg)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := f.initializeManagers(initCtx); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	if err := f.initializeStorage(initCtx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := f.initializeAudit(initCtx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize audit sinks: %w", err)
	}
	f.initializeDispatcher()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("credential_backend", cfg.Storage.Credentials),
		util.String("account_backend", cfg.Storage.Accounts),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("smtp_enabled", cfg.SMTP.Enabled))

	return f, nil
}

func (f *Factory) initializeManagers(ctx context.Context) error {
	var err error
	if f.hasher, err = hashing.NewHasher(f.config); err != nil {
		return err
	}
	if f.encryptionManager, err = encryption.NewEncryptionManager(ctx, f.config); err != nil {
		return err
	}
	if f.jwtManager, err = token.NewJWTManager(f.config); err != nil {
		return err
	}
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
	return nil
}

func (f *Factory) initializeStorage(ctx context.Context) error {
	needs := map[string]bool{
		f.config.Storage.Credentials: true,
		f.config.Storage.Accounts:    true,
	}

	if needs[config.BackendRedis] {
		c, err := client.NewRedisClient(f.config)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = c
	}
	if needs[config.BackendScylla] {
		c, err := scylla.NewScyllaClient(f.config)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = c
	}
	if needs[config.BackendMongo] {
		c, err := client.NewMongoClient(ctx, f.config)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		f.mongoClient = c
		if err := mongodb.EnsureIndexes(ctx, c); err != nil {
			return err
		}
	}

	switch f.config.Storage.Credentials {
	case config.BackendRedis:
		f.credentialStore = redisrepo.NewCredentialStore(f.redisClient, f.config.Redis.KeyPrefix)
	case config.BackendScylla:
		f.credentialStore = scylla.NewCredentialStore(f.scyllaClient)
	case config.BackendMongo:
		f.credentialStore = mongodb.NewCredentialStore(f.mongoClient)
	default:
		store := memory.NewCredentialStore(time.Now)
		janitorCtx, stop := context.WithCancel(context.Background())
		store.StartJanitor(janitorCtx, f.config.OTP.SweepInterval)
		f.stopJanitor = stop
		f.credentialStore = store
	}

	switch f.config.Storage.Accounts {
	case config.BackendScylla:
		f.accountRepository = scylla.NewAccountRepository(f.scyllaClient)
	case config.BackendMongo:
		f.accountRepository = mongodb.NewAccountRepository(f.mongoClient)
	default:
		f.accountRepository = memory.NewAccountRepository()
	}

	if rl := f.config.RateLimit; rl.Enabled {
		if f.redisClient != nil {
			f.rateLimiter = redisrepo.NewRateLimiter(f.redisClient, f.config.Redis.KeyPrefix, rl.Requests, rl.Window)
		} else {
			f.rateLimiter = memory.NewRateLimiter(rl.Requests, rl.Window, time.Now)
		}
	}
	return nil
}

func (f *Factory) initializeAudit(ctx context.Context) error {
	var (
		sinks      []audit.Recorder
		initErrors []error
	)

	if f.config.Kafka.Enabled {
		if p, err := client.NewKafkaProducer(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = p
			sinks = append(sinks, audit.NewKafkaSink(p))
		}
	}

	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(ctx, f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			sinks = append(sinks, audit.NewElasticsearchSink(c, f.config.Elasticsearch.Index))
		}
	}

	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(ctx, f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			sinks = append(sinks, audit.NewClickHouseSink(c))
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("audit sink initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Audit sink unavailable, continuing without it", util.ErrorField(err))
		}
	}

	recorder := audit.Multi(sinks...)
	if len(sinks) > 0 {
		f.auditQueue = audit.NewAsync(recorder, auditBuffer)
		recorder = f.auditQueue
	}
	f.auditTrail = audit.NewTrail(recorder, f.bucketingManager)
	util.Info("Audit trail configured", util.Int("sinks", len(sinks)))
	return nil
}

func (f *Factory) initializeDispatcher() {
	if f.config.SMTP.Enabled {
		f.dispatcher = notify.NewSMTPDispatcher(f.config)
		return
	}
	if f.config.IsProduction() {
		util.Warn("SMTP disabled in production, codes will not be delivered")
	}
	f.dispatcher = notify.NewLogDispatcher()
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.credentialStore,
			f.accountRepository,
			f.hasher,
			f.encryptionManager,
			f.dispatcher,
			f.jwtManager,
			f.auditTrail,
			service.PolicyFromConfig(f.config),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

type healthCheck struct {
	name  string
	check func(context.Context) error
}

func (f *Factory) healthChecks() []healthCheck {
	checks := []healthCheck{
		{"credential_store", f.credentialStore.HealthCheck},
		{"account_repository", f.accountRepository.HealthCheck},
	}
	if f.kafkaProducer != nil {
		checks = append(checks, healthCheck{"kafka", f.kafkaProducer.HealthCheck})
	}
	if f.esClient != nil {
		checks = append(checks, healthCheck{"elasticsearch", f.esClient.HealthCheck})
	}
	if f.clickhouseClient != nil {
		checks = append(checks, healthCheck{"clickhouse", f.clickhouseClient.HealthCheck})
	}
	return checks
}

// HealthCheck runs every check concurrently and returns the failures by name.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, hc := range f.healthChecks() {
		hc := hc
		g.Go(func() error {
			if err := hc.check(gctx); err != nil {
				mu.Lock()
				healthErrors[hc.name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return healthErrors
}

// IsHealthy ignores the audit sinks; they are written off the request path and are
// best-effort.
func (f *Factory) IsHealthy(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")

	for name, err := range healthErrors {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.stopJanitor != nil {
			f.stopJanitor()
		}

		if f.auditQueue != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.auditQueue.Close(ctx); err != nil {
				util.Warn("Audit queue not drained before shutdown", util.ErrorField(err))
			}
			cancel()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.mongoClient != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.mongoClient.Close(ctx); err != nil {
				util.Error("Failed to close MongoDB client", util.ErrorField(err))
			}
			cancel()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) CredentialStore() repository.CredentialStore {
	return f.credentialStore
}

func (f *Factory) AccountRepository() repository.AccountRepository {
	return f.accountRepository
}

// RateLimiter is nil when rate limiting is disabled.
func (f *Factory) RateLimiter() repository.RateLimiter {
	return f.rateLimiter
}
