package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chatmeter/chatmeter/internal/cache"
	"github.com/chatmeter/chatmeter/internal/events"
	"github.com/chatmeter/chatmeter/internal/gateway"
	"github.com/chatmeter/chatmeter/internal/lock"
	"github.com/chatmeter/chatmeter/internal/service"
)

var errNoGeneration = errors.New("chatctl does not generate replies")

func (a *app) credentials() *service.CredentialService {
	var authCache service.AuthCache
	if a.deps.redis != nil {
		// Only eviction runs here, so the TTL is irrelevant; the key prefix
		// must match the API servers.
		authCache = cache.NewFromClient(a.deps.redis, cache.DefaultConfig())
	}
	return service.NewCredentialService(a.deps.store, a.deps.store, authCache, a.deps.logger, nil)
}

func (a *app) accounts() *service.AccountService {
	return service.NewAccountService(a.deps.store, a.credentials(), service.AccountConfig{}, a.deps.logger, nil)
}

// metering is used for adjustments only. With Redis configured it takes the
// same distributed lock the API servers take.
func (a *app) metering() *service.MeteringService {
	var (
		locker lock.Locker = lock.NewKeyedMutex()
		sink   events.Sink = events.Noop{}
	)
	if a.deps.redis != nil {
		locker = lock.NewRedisLocker(a.deps.redis, lock.DefaultRedisConfig(), a.deps.logger)
		sink = events.NewPublisher(a.deps.redis, a.deps.logger, nil)
	}
	noGen := gateway.Func(func(context.Context, string) (string, error) {
		return "", &gateway.ServiceError{Detail: errNoGeneration.Error(), Err: errNoGeneration}
	})
	return service.NewMeteringService(a.deps.store, a.deps.store, noGen, locker, sink, service.MeteringConfig{}, a.deps.logger, nil)
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
