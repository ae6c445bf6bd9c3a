// Package registry implements the fleet discovery publisher: a
// fire-and-forget background task that writes the service's action
// schema once and its instance heartbeat periodically into a two
// collection MongoDB design, modeled on the distilled source's
// mongodb_publisher.py. A connection or write failure never aborts the
// job pipeline; it only flips the mongodb_registry health check RED.
package registry

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcintyjp/microservice-worker/internal/health"
	"github.com/mcintyjp/microservice-worker/internal/observability"
)

const healthCheckName = "mongodb_registry"

// ActionDescriptor is the published shape of one registered action, for
// external discovery.
type ActionDescriptor struct {
	Name         string   `bson:"name"`
	Dependencies []string `bson:"dependencies,omitempty"`
}

// Config controls connection, identity, and timing.
type Config struct {
	URI               string
	Database          string
	ServiceName       string
	ServiceVersion    string
	InstanceID        string
	Host              string
	Port              string
	HeartbeatInterval time.Duration
	KeyTTL            time.Duration
	MaxPoolSize       uint64
	MinPoolSize       uint64
}

// Publisher owns the Mongo client and the background heartbeat loop.
type Publisher struct {
	cfg    Config
	client *mongo.Client
	health *health.Registry
	logger *observability.Logger

	schemas   *mongo.Collection
	instances *mongo.Collection

	healthSnapshot func() (map[string]health.Check, health.Status)
}

// Connect dials MongoDB and ensures the two collections' indexes exist.
// Returns a non-nil error if the connection or index creation fails; the
// caller is expected to treat that as non-fatal per the application's
// startup sequencing.
func Connect(ctx context.Context, cfg Config, healthRegistry *health.Registry, logger *observability.Logger, healthSnapshot func() (map[string]health.Check, health.Status)) (*Publisher, error) {
	healthRegistry.Register(healthCheckName)

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		_ = healthRegistry.Update(healthCheckName, health.RED, map[string]any{"error": err.Error()})
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = healthRegistry.Update(healthCheckName, health.RED, map[string]any{"error": err.Error()})
		return nil, err
	}

	db := client.Database(cfg.Database)
	p := &Publisher{
		cfg:            cfg,
		client:         client,
		health:         healthRegistry,
		logger:         logger,
		schemas:        db.Collection("service_schemas"),
		instances:      db.Collection("service_instances"),
		healthSnapshot: healthSnapshot,
	}

	if err := p.ensureIndexes(ctx); err != nil {
		_ = healthRegistry.Update(healthCheckName, health.RED, map[string]any{"error": err.Error()})
		return nil, err
	}

	return p, nil
}

func (p *Publisher) ensureIndexes(ctx context.Context) error {
	_, err := p.schemas.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "service_name", Value: 1},
			{Key: "service_version", Value: 1},
			{Key: "published_at", Value: 1},
		},
	})
	if err != nil {
		return err
	}

	_, err = p.instances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "instance_id", Value: 1}},
	})
	return err
}

// PublishSchema writes the service_schemas document once at startup,
// keyed by {service_name}:{service_version}, with its expires_at already
// set KeyTTL out (every heartbeat refreshes it).
func (p *Publisher) PublishSchema(ctx context.Context, actions []ActionDescriptor) error {
	now := time.Now()

	doc := bson.M{
		"service_name":    p.cfg.ServiceName,
		"service_version": p.cfg.ServiceVersion,
		"actions":         actions,
		"published_at":    now,
		"expires_at":      now.Add(p.cfg.KeyTTL),
	}

	_, err := p.schemas.UpdateOne(ctx,
		bson.M{"service_name": p.cfg.ServiceName, "service_version": p.cfg.ServiceVersion},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		_ = p.health.Update(healthCheckName, health.RED, map[string]any{"error": err.Error()})
		return err
	}

	_ = p.health.Update(healthCheckName, health.GREEN, nil)
	return nil
}

// Run starts the heartbeat loop; it returns only when ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	p.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.heartbeat(ctx)
		}
	}
}

func (p *Publisher) heartbeat(ctx context.Context) {
	checks, aggregate := p.healthSnapshot()

	now := time.Now()
	doc := bson.M{
		"instance_id":     p.cfg.InstanceID,
		"service_name":    p.cfg.ServiceName,
		"service_version": p.cfg.ServiceVersion,
		"host":            p.cfg.Host,
		"port":            p.cfg.Port,
		"health_status":   aggregate.String(),
		"health_checks":   checksToBSON(checks),
		"last_heartbeat":  now,
		"expires_at":      now.Add(p.cfg.KeyTTL),
	}

	_, err := p.instances.UpdateOne(ctx,
		bson.M{"instance_id": p.cfg.InstanceID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		p.logger.LogError(ctx, "registry_heartbeat_failed", "REGISTRY_UNAVAILABLE", err.Error())
		_ = p.health.Update(healthCheckName, health.RED, map[string]any{"error": err.Error()})
		return
	}

	_, schemaErr := p.schemas.UpdateOne(ctx,
		bson.M{"service_name": p.cfg.ServiceName, "service_version": p.cfg.ServiceVersion},
		bson.M{"$set": bson.M{"expires_at": now.Add(p.cfg.KeyTTL)}},
	)
	if schemaErr != nil {
		p.logger.LogError(ctx, "registry_schema_ttl_refresh_failed", "REGISTRY_UNAVAILABLE", schemaErr.Error())
	}

	_ = p.health.Update(healthCheckName, health.GREEN, nil)
}

func checksToBSON(checks map[string]health.Check) bson.M {
	out := bson.M{}
	for name, check := range checks {
		out[name] = bson.M{"status": check.Status.String(), "details": check.Details}
	}
	return out
}

// Close disconnects the Mongo client.
func (p *Publisher) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}
