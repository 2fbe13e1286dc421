// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package monitor implements the per-device supervisory task (§4.G): one
// goroutine per known device that keeps its session alive, installs the
// notification server address, scans it, and watches for a dead heartbeat.
package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sapphire-mesh/sapphire/internal/device"
	"github.com/sapphire-mesh/sapphire/internal/exchange"
	"github.com/sapphire-mesh/sapphire/pkg/log"
	"github.com/sapphire-mesh/sapphire/pkg/rdg"
)

// Monitor owns one goroutine per distinct device id, created the first
// time Found is called for it (normally wired to the scanner's "found
// device" callback, §4.F/§4.G).
type Monitor struct {
	mu       sync.Mutex
	sessions map[uint64]*deviceMonitor

	registry *exchange.Registry
	pool     *rdg.Pool

	selfOrigin  string
	commandPort int

	notifyAddr net.IP
	notifyPort uint16

	metaStore device.KVMetaStore
	fwStore   device.FirmwareStore

	// securitySeed derives each device's set-security-key material
	// (device.DeriveSecurityKey); nil disables key provisioning entirely.
	securitySeed []byte

	watchdogTimeout time.Duration
	retryTimeout    time.Duration
}

// New builds a Monitor. notifyAddr/notifyPort are the address devices are
// told (via set_kv_server) to push unsolicited notifications to -- this
// process's own address and the internal/notify server's port. securitySeed
// is deployment secret material used to derive each device's security key;
// pass nil to skip set-security-key provisioning.
func New(registry *exchange.Registry, pool *rdg.Pool, selfOrigin string, commandPort int, notifyAddr net.IP, notifyPort uint16, metaStore device.KVMetaStore, fwStore device.FirmwareStore, securitySeed []byte, watchdogTimeout, retryTimeout time.Duration) *Monitor {
	return &Monitor{
		sessions:        make(map[uint64]*deviceMonitor),
		registry:        registry,
		pool:            pool,
		selfOrigin:      selfOrigin,
		commandPort:     commandPort,
		notifyAddr:      notifyAddr,
		notifyPort:      notifyPort,
		metaStore:       metaStore,
		fwStore:         fwStore,
		securitySeed:    securitySeed,
		watchdogTimeout: watchdogTimeout,
		retryTimeout:    retryTimeout,
	}
}

// deviceMonitor is the state one supervisory goroutine owns for a single
// device. sess is non-nil only while a session is live, guarded by its own
// lock so DeviceByID (called from the notification server's goroutine) can
// read it concurrently with run's reconnect loop.
type deviceMonitor struct {
	dev *exchange.Device

	mu   sync.Mutex
	sess *device.Session

	stop    chan struct{}
	stopped chan struct{}
}

// Found registers a newly discovered device and starts its supervisory
// task, unless one is already running for this device id (§4.G: "One
// supervisory task per known device, created on first 'found' signal").
func (m *Monitor) Found(dev *exchange.Device) {
	id := dev.DeviceID()

	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return
	}
	dm := &deviceMonitor{dev: dev, stop: make(chan struct{}), stopped: make(chan struct{})}
	m.sessions[id] = dm
	m.mu.Unlock()

	go m.run(dm)
}

// Stop tears down every running supervisory task and waits for each to
// exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	dms := make([]*deviceMonitor, 0, len(m.sessions))
	for _, dm := range m.sessions {
		dms = append(dms, dm)
	}
	m.mu.Unlock()

	for _, dm := range dms {
		close(dm.stop)
	}
	for _, dm := range dms {
		<-dm.stopped
	}
}

func (m *Monitor) run(dm *deviceMonitor) {
	defer close(dm.stopped)

	for {
		select {
		case <-dm.stop:
			return
		default:
		}

		if err := m.attemptOnline(dm); err != nil {
			log.Infof("monitor: device %d: %v", dm.dev.DeviceID(), err)
			if serr := dm.dev.SetStatus(m.selfOrigin, exchange.StatusOffline); serr != nil {
				log.Warnf("monitor: device %d: status transition failed: %v", dm.dev.DeviceID(), serr)
			}
		}

		select {
		case <-dm.stop:
			return
		default:
		}
		m.sleepRetry(dm)
	}
}

// attemptOnline dials the device, installs the notification server
// address, scans it, publishes the refreshed attributes, and runs the
// watchdog phase until the device goes offline (§4.G steps 1-4).
func (m *Monitor) attemptOnline(dm *deviceMonitor) error {
	host := exchange.DeviceHost(dm.dev)
	if host == nil {
		return fmt.Errorf("no usable host address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := rdg.Dial(ctx, m.pool, &net.UDPAddr{IP: host, Port: m.commandPort})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	sess := device.NewSession(dm.dev, client, m.selfOrigin, m.metaStore, m.fwStore)
	dm.mu.Lock()
	dm.sess = sess
	dm.mu.Unlock()
	defer func() {
		dm.mu.Lock()
		dm.sess = nil
		dm.mu.Unlock()
	}()

	if err := sess.InstallNotificationServer(m.notifyAddr, m.notifyPort); err != nil {
		return fmt.Errorf("install notification server: %w", err)
	}
	if len(m.securitySeed) > 0 {
		key, err := device.DeriveSecurityKey(m.securitySeed, dm.dev.DeviceID())
		if err != nil {
			return fmt.Errorf("derive security key: %w", err)
		}
		if err := sess.SetSecurityKey(key); err != nil {
			return fmt.Errorf("set security key: %w", err)
		}
	}
	if err := sess.Scan(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	dm.dev.Touch(time.Now().UTC())

	if m.registry != nil {
		if err := m.registry.Publish(dm.dev.Object); err != nil {
			log.Warnf("monitor: publish device %d failed: %v", dm.dev.DeviceID(), err)
		}
	}

	log.Infof("monitor: device %d online", dm.dev.DeviceID())
	m.watchdog(dm)
	return nil
}

// watchdog runs while the device reports online, breaking out the moment
// the device goes stale (§4.G step 3): "while device_status == online,
// sleep 1 s ticks; if now - last_notification_at > 2 min, break out".
func (m *Monitor) watchdog(dm *deviceMonitor) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for dm.dev.Status() == exchange.StatusOnline {
		select {
		case <-dm.stop:
			return
		case <-ticker.C:
		}

		if dm.dev.SinceLastNotification(time.Now().UTC()) > m.watchdogTimeout {
			log.Infof("monitor: device %d watchdog timeout", dm.dev.DeviceID())
			if err := dm.dev.SetStatus(m.selfOrigin, exchange.StatusOffline); err != nil {
				log.Warnf("monitor: device %d: status transition failed: %v", dm.dev.DeviceID(), err)
			}
			return
		}
	}
}

// sleepRetry waits up to retryTimeout before the next reconnect attempt,
// returning early the moment the device's status flips back to online --
// e.g. because a late notification arrived and ReceiveNotification already
// marked it so (§4.G step 5).
func (m *Monitor) sleepRetry(dm *deviceMonitor) {
	deadline := time.Now().Add(m.retryTimeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if dm.dev.Status() == exchange.StatusOnline {
			return
		}
		select {
		case <-dm.stop:
			return
		case <-ticker.C:
		}
	}
}
