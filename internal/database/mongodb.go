package database

import (
	"context"
	"fmt"
	"time"

	"github.com/codecollab/collab-server/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const appName = "collab-server"

// MongoOptions controls how Connect dials the cluster.
type MongoOptions struct {
	URI     string
	Timeout time.Duration
	// Attempts is the number of dial+ping rounds before giving up; the
	// delay between rounds doubles starting at Backoff.
	Attempts int
	Backoff  time.Duration
}

// Connect dials MongoDB and pings the primary, retrying while the cluster
// comes up. The caller owns client.Disconnect.
func Connect(ctx context.Context, o MongoOptions) (*mongo.Client, error) {
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	backoff := o.Backoff
	var lastErr error
	for attempt := 1; attempt <= o.Attempts; attempt++ {
		client, err := dial(ctx, o.URI, o.Timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("mongo attempt %d/%d failed: %v", attempt, o.Attempts, err)
		if attempt == o.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func dial(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	opts := options.Client().ApplyURI(uri).SetAppName(appName)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}
