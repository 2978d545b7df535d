// Package prolink implements the client-side half of a DJ-equipment
// network protocol: a live Registry of devices fed by UDP broadcasts, and a
// DBClient that queries each device's track database over a pooled TCP
// connection.
package prolink

import (
	"context"
	"fmt"
	"log"
)

// Session bundles a Registry and DBClient with their optional
// instrumentation, wired up the way a typical caller wants them: metrics
// and the MQTT bridge attached to both, the DBClient's worker started, and
// the registry's sweep loop running. Using Session is optional — nothing
// stops a caller from constructing a Registry and DBClient directly.
type Session struct {
	Registry *Registry
	DBClient *DBClient
	Metrics  *Metrics
	MQTT     *MQTTBridge

	stopSweep chan struct{}
}

// NewSession builds a Registry and DBClient from cfg, enabling Prometheus
// metrics and the MQTT bridge when cfg says to.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	registry := NewRegistry().WithTTL(cfg.Registry.DeviceTTL)

	dbClient, err := NewDBClient(registry, cfg.DBClient)
	if err != nil {
		return nil, fmt.Errorf("prolink: building dbclient: %w", err)
	}

	s := &Session{Registry: registry, DBClient: dbClient}

	if cfg.Prometheus.Enabled {
		s.Metrics = NewMetrics()
		registry.AttachMetrics(s.Metrics)
		dbClient.AttachMetrics(s.Metrics)
	}

	if cfg.MQTT.Enabled {
		bridge, err := NewMQTTBridge(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("prolink: building mqtt bridge: %w", err)
		}
		s.MQTT = bridge
		registry.Subscribe(bridge.PublishChange)
		dbClient.AttachMQTT(bridge)
	}

	dbClient.Start(ctx)

	s.stopSweep = make(chan struct{})
	go registry.SweepLoop(cfg.Registry.SweepInterval, s.stopSweep)

	log.Printf("prolink: session started (device_ttl=%s, sweep_interval=%s)", cfg.Registry.DeviceTTL, cfg.Registry.SweepInterval)
	return s, nil
}

// Close stops the sweep loop and the DBClient worker, and disconnects the
// MQTT bridge if one is attached.
func (s *Session) Close() {
	close(s.stopSweep)
	s.DBClient.Stop()
	if s.MQTT != nil {
		s.MQTT.Disconnect()
	}
}
