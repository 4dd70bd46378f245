/*
 * Copyright 2025 FTTH Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/ftthlab/fibermon/pkg/cache"
	"github.com/ftthlab/fibermon/pkg/cascade"
	"github.com/ftthlab/fibermon/pkg/config"
	"github.com/ftthlab/fibermon/pkg/db"
	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
	"github.com/ftthlab/fibermon/pkg/monitor"
	"github.com/ftthlab/fibermon/pkg/notify"
	"github.com/ftthlab/fibermon/pkg/probe"
	"github.com/ftthlab/fibermon/pkg/registry"
	synchro "github.com/ftthlab/fibermon/pkg/sync"
	"github.com/ftthlab/fibermon/pkg/topology"
	"github.com/ftthlab/fibermon/pkg/trouble"
)

func main() {
	configPath := flag.String("config", "/etc/fibermon/fibermon.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg models.CoreConfig

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	mainLogger, err := logger.New(cfg.Logging, "fibermon")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	pool, err := db.NewPool(ctx, &cfg.Database, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, mainLogger); err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	database := db.New(pool, mainLogger)
	devices := registry.NewDeviceRegistry(database, mainLogger)
	links := registry.NewLinkRegistry(database, mainLogger)

	acsClient, err := synchro.NewHTTPACSClient(&cfg.ACS, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to create ACS client")
	}

	acsSync := synchro.NewACSSynchronizer(acsClient, devices, &cfg.ACS, cfg.Sync.Concurrency, mainLogger)
	syncService := synchro.NewService(mainLogger,
		synchro.NewInfraSynchronizer(database, devices, cfg.Sync.Concurrency, mainLogger),
		synchro.NewSubscriberSynchronizer(database, devices, cfg.Sync.Concurrency, mainLogger))

	prober := probe.NewProber(database, probe.NewICMPPinger(&cfg.Probe), &cfg.Probe, mainLogger)

	ttlCache := cache.New()
	assembler := topology.NewAssembler(database, devices, links, ttlCache, &cfg.Topology, mainLogger)
	aggregator := trouble.NewAggregator(database, ttlCache, &cfg.Trouble, mainLogger)
	notifier := cascade.NewNotifier(devices, links, database, notify.NewGatewayClient(&cfg.Gateway, mainLogger), mainLogger)

	engine := monitor.NewEngine(syncService, acsSync, prober, assembler, notifier, &cfg, mainLogger)

	if err := engine.Start(ctx); err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start monitoring engine")
	}

	// The aggregator has no scheduler of its own; warm the cache once so
	// the first dashboard query after startup is cheap.
	if _, err := aggregator.TroubledSubscribers(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("Initial trouble query failed")
	}

	<-ctx.Done()

	if err := engine.Stop(context.Background()); err != nil {
		mainLogger.Error().Err(err).Msg("Failed to stop monitoring engine")
	}
}
