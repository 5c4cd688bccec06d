package tracker

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/suspectuso/boost-tracker/internal/boostapi"
	"github.com/suspectuso/boost-tracker/internal/config"
	"github.com/suspectuso/boost-tracker/internal/live"
	"github.com/suspectuso/boost-tracker/internal/remoteinfo"
)

// Build wires a tracker to the real boosts API, relays and Podcast Index.
// The tracker owns everything it creates and releases it on Destroy.
func Build(cfg *config.Config, log *slog.Logger) (*Tracker, error) {
	remote := remoteinfo.NewResolver(
		remoteinfo.NewClient(cfg.PodcastIndexURL, cfg.PodcastIndexKey, cfg.PodcastIndexSecret),
		cfg.RemoteCacheSize,
		log.With("component", "remoteinfo"),
	)

	pool := live.NewRelayPool(cfg.Relays, log.With("component", "relays"))
	profiles := live.NewProfileResolver(pool, log.With("component", "profiles"))

	sub := live.NewSubscriber(pool, profiles, remote, live.Options{
		RetryBase:   cfg.RetryBase,
		MaxAttempts: cfg.MaxRetryAttempts,
	}, log.With("component", "live"))

	loader := boostapi.NewLoader(
		boostapi.NewClient(cfg.BoostAPIURL),
		remote,
		cfg.PageItems,
		cfg.MaxPages,
		log.With("component", "history"),
	)

	opts := DefaultOptions()
	opts.BoostPubkey = cfg.BoostPubkey
	opts.ZapActivity = cfg.ZapActivity
	opts.LoadBoosts = cfg.LoadBoosts
	opts.LoadZaps = cfg.LoadZaps
	opts.DedupCapacity = cfg.DedupCapacity
	opts.History = loader
	opts.Live = sub
	opts.Closers = []io.Closer{profiles, remote, pool}

	t := New(opts, log.With("component", "tracker"))

	for name, value := range cfg.Filters() {
		if err := t.SetFilter(name, value); err != nil {
			t.Destroy()
			return nil, fmt.Errorf("configure tracker: %w", err)
		}
	}

	remote.Start()
	profiles.Start()

	return t, nil
}
