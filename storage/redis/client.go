// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redis implements the shared quota database on redis.
package redis

import (
	"net/url"
	"strconv"

	"github.com/go-redis/redis"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default redis errs class.
	Error = errs.Class("redis")
)

// Client is the entrypoint into Redis.
type Client struct {
	log *zap.Logger
	db  *redis.Client
}

// NewClient returns a configured Client instance, verifying a successful connection to redis.
func NewClient(log *zap.Logger, address, password string, db int) (*Client, error) {
	client := &Client{
		log: log,
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping().Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.db.Close())
	}

	return client, nil
}

// NewClientFrom returns a configured Client instance from a redis address of
// the form redis://host:port?db=1&password=secret.
func NewClientFrom(log *zap.Logger, address string) (*Client, error) {
	redisURL, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if redisURL.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisURL.Query()

	db := 0
	if value := q.Get("db"); value != "" {
		db, err = strconv.Atoi(value)
		if err != nil {
			return nil, Error.New("invalid db %q: %v", value, err)
		}
	}

	return NewClient(log, redisURL.Host, q.Get("password"), db)
}

// Close closes a redis client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
