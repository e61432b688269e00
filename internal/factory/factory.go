package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"

	"campus-auth-service/internal/audit"
	"campus-auth-service/internal/bucketing"
	"campus-auth-service/internal/client"
	"campus-auth-service/internal/config"
	"campus-auth-service/internal/email"
	"campus-auth-service/internal/encryption"
	"campus-auth-service/internal/hashing"
	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/repository/scylla"
	"campus-auth-service/internal/service"
	"campus-auth-service/internal/tls"
	"campus-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories and services
	credentialRepo scylla.CredentialRepository
	otpStore       otp.Store
	mailer         email.Mailer
	recorder       *audit.Recorder
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeManagers()
	f.initializeCore()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("redis_otp_store", cfg.Redis.Enabled),
	)

	return f, nil
}

// initializeClients brings up external service clients concurrently.
// Scylla is mandatory; the rest degrade to disabled with a warning outside
// production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := scylla.NewScyllaClient(f.config, util.Get())
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = c
		return nil
	})

	var optErrs []error
	var mu sync.Mutex
	optional := func(name string, init func() error) func() error {
		return func() error {
			if err := init(); err != nil {
				mu.Lock()
				optErrs = append(optErrs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		}
	}

	if f.config.Redis.Enabled {
		g.Go(optional("redis", func() error {
			c, err := client.NewRedisClient(f.config, util.Get())
			if err != nil {
				return err
			}
			f.redisClient = c
			return nil
		}))
	}

	if f.config.Kafka.Enabled {
		g.Go(optional("kafka", func() error {
			p, err := client.NewKafkaProducer(f.config, util.Get())
			if err != nil {
				return err
			}
			f.kafkaProducer = p
			return nil
		}))
	}

	if f.config.Clickhouse.Enabled {
		g.Go(optional("clickhouse", func() error {
			c, err := client.NewClickHouseClient(f.config, util.Get())
			if err != nil {
				return err
			}
			f.clickhouseClient = c
			return nil
		}))
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if len(optErrs) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("service initialization failed: %v", optErrs)
		}
		for _, err := range optErrs {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Fatal("Failed to load AWS config for KMS", util.ErrorField(err))
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
}

func (f *Factory) initializeCore() {
	f.credentialRepo = scylla.NewCredentialRepository(f.scyllaClient, f.bucketingManager)

	if f.config.Redis.Enabled && f.redisClient != nil {
		f.otpStore = otp.NewRedisStore(f.redisClient)
	} else {
		f.otpStore = otp.NewMemoryStore()
	}

	if f.config.SMTP.Enabled {
		f.mailer = email.NewSMTPMailer(f.config)
	} else {
		f.mailer = email.NewLogMailer()
	}

	f.recorder = audit.NewRecorder(
		f.kafkaProducer, f.clickhouseClient, f.bucketingManager,
		f.config.Kafka.SecurityEventsTopic)

	f.serviceFactory = service.NewServiceFactory(service.Deps{
		Credentials:  f.credentialRepo,
		Hasher:       f.hasher,
		Encryption:   f.encryptionManager,
		OTPStore:     f.otpStore,
		Mailer:       f.mailer,
		Recorder:     f.recorder,
		SessionKey:   f.config.Session.SigningKey,
		SessionTTL:   f.config.Session.TTL,
		EmailCodeTTL: f.config.Login.EmailCodeTTL,
		TOTPIssuer:   f.config.Login.TOTPIssuer,
	})
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
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

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}
