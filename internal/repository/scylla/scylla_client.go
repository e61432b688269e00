package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"campus-auth-service/internal/config"
	"campus-auth-service/internal/util"
)

// PreparedStatements holds the statements used by the credential repository
type PreparedStatements struct {
	CreateCredential   *gocql.Query
	CreateEmailToUser  *gocql.Query
	GetUserByEmailHash *gocql.Query
	GetCredentialByID  *gocql.Query
	UpdateLastLogin    *gocql.Query
	UpdateSecondFactor *gocql.Query
}

type ScyllaClient struct {
	Session  *gocql.Session
	config   *config.ScyllaConfig
	Prepared *PreparedStatements
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	client.prepareStatements()

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (c *ScyllaClient) prepareStatements() {
	s := c.Session

	c.Prepared = &PreparedStatements{
		CreateCredential: s.Query(`INSERT INTO credentials_by_id
			(user_bucket, user_id, email, email_hash, password_hash, role,
			 second_factor_mode, totp_secret_encrypted, totp_secret_dek,
			 totp_secret_key_id, created_at, updated_at, last_login)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		CreateEmailToUser: s.Query(`INSERT INTO credentials_by_email
			(email_hash, user_id, user_bucket) VALUES (?, ?, ?)`),
		GetUserByEmailHash: s.Query(`SELECT user_id, user_bucket
			FROM credentials_by_email WHERE email_hash = ?`),
		GetCredentialByID: s.Query(`SELECT user_bucket, user_id, email,
			email_hash, password_hash, role, second_factor_mode,
			totp_secret_encrypted, totp_secret_dek, totp_secret_key_id,
			created_at, updated_at, last_login
			FROM credentials_by_id WHERE user_bucket = ? AND user_id = ?`),
		UpdateLastLogin: s.Query(`UPDATE credentials_by_id
			SET last_login = ?, updated_at = ?
			WHERE user_bucket = ? AND user_id = ?`),
		UpdateSecondFactor: s.Query(`UPDATE credentials_by_id
			SET second_factor_mode = ?, totp_secret_encrypted = ?,
			    totp_secret_dek = ?, totp_secret_key_id = ?, updated_at = ?
			WHERE user_bucket = ? AND user_id = ?`),
	}
}

// ExecuteBatch runs a logged batch against the session.
func (c *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return c.Session.ExecuteBatch(batch)
}

func (c *ScyllaClient) HealthCheck(ctx context.Context) error {
	if err := c.Session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (c *ScyllaClient) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}
