// The agent is the device-side companion process: it owns the local
// cache, watches connectivity, and drains the durable outboxes against
// the remote service whenever a connection comes back.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardian-service/internal/cache"
	"guardian-service/internal/client"
	"guardian-service/internal/config"
	"guardian-service/internal/connectivity"
	"guardian-service/internal/kvstore"
	"guardian-service/internal/outbox"
	"guardian-service/internal/remote"
	"guardian-service/internal/repository"
	"guardian-service/internal/util"
)

const probeInterval = 30 * time.Second

func main() {
	cfg := config.Load()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	store := openStore(cfg)
	ttlCache := cache.New(store)

	gate := connectivity.NewHTTPProbe(cfg.Remote.BaseURL, cfg.Remote.ProbeTimeout)
	remoteClient := remote.NewClient(&cfg.Remote, util.Get())

	contactsOutbox := outbox.New(store, "contacts")
	userInfoOutbox := outbox.New(store, "user_info")
	locationOutbox := outbox.New(store, "locations")

	contacts := repository.NewContactsRepository(ttlCache, gate, remoteClient, contactsOutbox, cfg.Cache.ContactsTTL)
	userInfo := repository.NewUserInfoRepository(ttlCache, gate, remoteClient, userInfoOutbox, cfg.Cache.UserInfoTTL)
	locations := repository.NewLocationHistoryRepository(ttlCache, gate, remoteClient, locationOutbox, cfg.Cache.MaxLocationHistory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.Info("Agent started",
		util.String("remote", cfg.Remote.BaseURL),
		util.Duration("probe_interval", probeInterval))

	runSyncLoop(ctx, gate, contacts, userInfo, locations)

	util.Info("Agent stopped")
}

// openStore prefers the Redis-backed store and falls back to memory so
// the agent still serves cached reads while Redis is down.
func openStore(cfg *config.Config) kvstore.Store {
	redisClient, err := client.NewRedisClient(cfg, util.Get())
	if err != nil {
		util.Warn("Redis unavailable, using in-memory store", util.ErrorField(err))
		return kvstore.NewMemoryStore()
	}
	return kvstore.NewRedisStore(redisClient)
}

type replayer interface {
	ReplayPending(ctx context.Context) error
}

// runSyncLoop probes connectivity on a fixed cadence and, on each online
// observation, drains the outboxes in entity order. Replay stops at the
// first failure and resumes from that point next round.
func runSyncLoop(ctx context.Context, gate *connectivity.HTTPProbe, contacts *repository.ContactsRepository, userInfo *repository.UserInfoRepository, locations *repository.LocationHistoryRepository) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	wasOnline := false
	replayers := []struct {
		name string
		r    replayer
	}{
		{"contacts", contacts},
		{"user_info", userInfo},
		{"locations", locations},
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		online := gate.IsOnline()
		if online && !wasOnline {
			util.Info("Connectivity restored, replaying pending mutations")
		}
		if online {
			for _, entry := range replayers {
				if err := entry.r.ReplayPending(ctx); err != nil {
					util.Warn("Replay interrupted",
						util.String("entity", entry.name),
						util.ErrorField(err))
					break
				}
			}

			// Refresh the aggregate so the cache stays warm for offline reads
			if _, err := userInfo.Load(ctx, repository.LoadOptions{}); err != nil {
				util.Warn("Background refresh failed", util.ErrorField(err))
			}
		}
		wasOnline = online
	}
}
