// Copyright 2025 Certen Protocol
//
// Document Store
// Firebase Admin SDK client used as the gateway's durable record of
// confirmed transactions.

package docstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Document is the single record the gateway persists per confirmed
// transaction: {sender, signer, ca, hash}.
type Document struct {
	Sender string `firestore:"sender"`
	Signer string `firestore:"signer"`
	CA     string `firestore:"ca"`
	Hash   string `firestore:"hash"`
}

// Store is the interface the confirmation listener depends on. Its return
// value is advisory only: a failed Create does not undo the on-chain
// submission and is never retried by the caller.
type Store interface {
	Create(ctx context.Context, doc Document) error
}

// Client wraps the Firestore client used as the gateway's Document Store.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	collection string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// ClientConfig holds configuration for the document store client.
type ClientConfig struct {
	// ProjectID is the Firebase/GCP project ID.
	ProjectID string

	// CredentialsFile is the path to the service account JSON file.
	// If empty, uses GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsFile string

	// Collection is the Firestore collection confirmed transactions are
	// written to. Defaults to "confirmations".
	Collection string

	// Enabled controls whether writes are actually performed. If false,
	// Create is a no-op (useful for local development without GCP creds).
	Enabled bool

	Logger *log.Logger
}

// DefaultConfig returns a ClientConfig populated from environment variables.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Collection:      "confirmations",
		Enabled:         getEnvBool("FIRESTORE_ENABLED", false),
		Logger:          log.New(os.Stdout, "[DocStore] ", log.LstdFlags),
	}
}

// NewClient creates a new document store client.
func NewClient(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[DocStore] ", log.LstdFlags)
	}
	if cfg.Collection == "" {
		cfg.Collection = "confirmations"
	}

	client := &Client{
		projectID:  cfg.ProjectID,
		collection: cfg.Collection,
		logger:     cfg.Logger,
		enabled:    cfg.Enabled,
	}

	if !cfg.Enabled {
		cfg.Logger.Println("document store is DISABLED - running in no-op mode")
		return client, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when the document store is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	client.app = app
	client.firestore = fs

	cfg.Logger.Printf("document store initialized for project: %s", cfg.ProjectID)
	return client, nil
}

// Close closes the underlying Firestore client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether the store performs real writes.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Create persists a confirmed-transaction document keyed by its hash.
// Durability and indexing are the store's concern; the caller treats the
// return value as advisory only.
func (c *Client) Create(ctx context.Context, doc Document) error {
	if !c.IsEnabled() {
		c.logger.Printf("document store disabled - skipping document hash=%s", doc.Hash)
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("document store client not initialized")
	}

	_, err := c.firestore.Collection(c.collection).Doc(doc.Hash).Set(ctx, doc)
	if err != nil {
		c.logger.Printf("failed to create document hash=%s: %v", doc.Hash, err)
		return fmt.Errorf("failed to create document: %w", err)
	}

	c.logger.Printf("created document sender=%s hash=%s", doc.Sender, doc.Hash)
	return nil
}

// Health checks whether the document store connection is usable.
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("document store client not initialized")
	}

	_, err := c.firestore.Collection(c.collection).Doc("_health_check").Get(ctx)
	if err != nil && status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1" || val == "yes"
}
