// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/sapphire-mesh/sapphire/internal/automaton"
	"github.com/sapphire-mesh/sapphire/internal/config"
	"github.com/sapphire-mesh/sapphire/internal/dispatch"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/internal/firmware"
	"github.com/sapphire-mesh/sapphire/internal/kvmetacache"
	"github.com/sapphire-mesh/sapphire/internal/longpoll"
	"github.com/sapphire-mesh/sapphire/internal/monitor"
	"github.com/sapphire-mesh/sapphire/internal/notify"
	"github.com/sapphire-mesh/sapphire/internal/scanner"
	"github.com/sapphire-mesh/sapphire/internal/transport"
	"github.com/sapphire-mesh/sapphire/pkg/log"
	natsclient "github.com/sapphire-mesh/sapphire/pkg/nats"
	"github.com/sapphire-mesh/sapphire/pkg/rdg"
	"github.com/sapphire-mesh/sapphire/pkg/runtimeEnv"
)

// version is overwritten at build time via -ldflags.
var version = "development"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("sapphire %s\n", version)
		return
	}

	if flagInit {
		initEnv()
		return
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("loading './.env' file failed: %s", err.Error())
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	config.Init(flagConfigFile)
	log.SetLogLevel(config.Keys.LogLevel)
	log.SetLogDateTime(config.Keys.LogDate)

	origin := config.Keys.OriginID
	if origin == "" {
		origin = uuid.NewString()
	}
	log.Infof("sapphire: origin id %s", origin)

	natsConfig, err := json.Marshal(config.Keys.Nats)
	if err != nil {
		log.Fatal(err)
	}
	if err := natsclient.Init(natsConfig); err != nil {
		log.Fatal(err)
	}
	natsclient.Connect()
	broker := natsclient.GetClient()
	if broker == nil {
		log.Fatal("sapphire: a reachable NATS broker is required (set 'nats.address' in config.json)")
	}

	registry := exchange.New(origin)
	bus := dispatch.New()
	registry.SetDispatcher(bus)

	publisher := transport.NewPublisher(broker, origin, 0)
	go publisher.Run()
	defer publisher.Stop()
	registry.SetTransport(publisher)

	subscriber := transport.NewSubscriber(origin, registry, publisher)
	bootstrapGrace, err := time.ParseDuration(config.Keys.BootstrapGrace)
	if err != nil {
		log.Fatalf("sapphire: invalid bootstrap-grace %q: %s", config.Keys.BootstrapGrace, err.Error())
	}
	if err := subscriber.Start(broker, bootstrapGrace); err != nil {
		log.Fatalf("sapphire: subscribing to broker failed: %s", err.Error())
	}

	cacheDB, err := kvmetacache.Open(config.Keys.KVMetaCacheDB)
	if err != nil {
		log.Fatalf("sapphire: opening kv-meta cache failed: %s", err.Error())
	}
	defer cacheDB.Close()

	metaStore, err := kvmetacache.NewLookup(cacheDB, config.Keys.KVMetaCacheEntries)
	if err != nil {
		log.Fatalf("sapphire: building kv-meta lookup failed: %s", err.Error())
	}

	fwLibrary := firmware.NewLibrary()

	pool := rdg.NewPool(config.Keys.RdgPoolSize)

	notifyAddr, err := outboundIP()
	if err != nil {
		log.Fatalf("sapphire: determining outbound address failed: %s", err.Error())
	}

	var securitySeed []byte
	if seed := os.Getenv("SAPPHIRE_SECURITY_KEY_SEED"); seed != "" {
		securitySeed = []byte(seed)
	}

	devMonitor := monitor.New(
		registry, pool, origin,
		config.Keys.DeviceCommandPort,
		notifyAddr, uint16(config.Keys.NotificationPort),
		metaStore, fwLibrary, securitySeed,
		mustParseDuration(config.Keys.WatchdogTimeout),
		mustParseDuration(config.Keys.MonitorRetryTimeout),
	)
	defer devMonitor.Stop()

	var notifyRunning atomic.Bool
	notifyRunning.Store(true)
	notifyServer, err := notify.New(devMonitor, notifyRunning.Load)
	if err != nil {
		log.Fatalf("sapphire: binding notification server failed: %s", err.Error())
	}
	go func() {
		if err := notifyServer.Run(); err != nil {
			log.Errorf("sapphire: notification server stopped: %s", err.Error())
		}
	}()
	defer notifyServer.Close()

	netScanner := scanner.New(registry, pool, origin,
		config.Keys.GatewayDiscoveryPort, config.Keys.DeviceCommandPort, config.Keys.GatewayTimePort,
		devMonitor.Found)
	if err := netScanner.Start(mustParseDuration(config.Keys.ScannerInterval)); err != nil {
		log.Fatalf("sapphire: starting network scanner failed: %s", err.Error())
	}
	defer netScanner.Shutdown()

	// Rule definitions live in deployment-specific Go code, the same way
	// the original automaton's macro.py scripts hard-coded their Macro
	// instances; none are registered by default here.
	ruleEngine := automaton.New(bus, nil)
	if err := ruleEngine.Start(); err != nil {
		log.Fatalf("sapphire: starting automaton failed: %s", err.Error())
	}
	defer ruleEngine.Stop()

	longpollMgr := longpoll.NewManager(bus)
	defer longpollMgr.Shutdown()
	_ = longpollMgr // opened per-session by the out-of-scope HTTP long-poll surface (§1)

	runtimeEnv.SystemdNotifiy(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	notifyRunning.Store(false)
	log.Print("sapphire: graceful shutdown complete")
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("sapphire: invalid duration %q: %s", s, err.Error())
	}
	return d
}

// outboundIP returns the local address the kernel would route traffic to
// the wider network through, used as the notification server's
// advertised address (§4.G step 1). Grounded on the common Go idiom of
// reading a dialed UDP socket's local address rather than enumerating
// interfaces.
func outboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "198.51.100.1:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
