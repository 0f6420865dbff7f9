package main

import (
	"context"
	"fmt"

	"photo-indexer/internal/core/events"
	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/core/resolver"
	"photo-indexer/internal/integrations/mqtt"
	"photo-indexer/internal/integrations/provider"

	log "github.com/sirupsen/logrus"
)

// buildIndexer wires detectors, resolver strategy and notifier into a pipeline.
// The caller owns the returned detectors and must close them.
func buildIndexer(ctx context.Context, a *app, notifier events.Notifier) (*indexer.Indexer, *provider.Detectors, error) {
	strategy, err := resolver.NewStrategy(a.cfg.Resolver.Strategy)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Profile matching strategy: %s (threshold %.2f)", strategy.Name(), a.cfg.Resolver.Threshold)
	if strategy.Name() != resolver.StrategyFirstMatch {
		log.Warnf("Strategy %s assigns faces to the nearest profile, results differ from first_match on existing data", strategy.Name())
	}

	detectors, err := provider.Create(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating detectors: %w", err)
	}

	ix := indexer.New(
		a.repo,
		detectors.Tagger,
		detectors.Faces,
		resolver.New(strategy),
		notifier,
		indexer.OptionsFromConfig(a.cfg),
	)
	return ix, detectors, nil
}

// mqttBridge hält Client und Publisher für die Dauer eines Kommandos
type mqttBridge struct {
	client    *mqtt.Client
	publisher *mqtt.EventPublisher
}

// startMQTT verbindet den Client, wenn MQTT aktiviert ist. Ein nicht erreichbarer
// Broker ist kein Fehler, die Indexierung läuft dann ohne Ereignisse weiter.
func startMQTT(a *app) *mqttBridge {
	if !a.cfg.MQTT.Enabled {
		log.Debug("MQTT is disabled in config")
		return nil
	}

	client := mqtt.NewClient(a.cfg.MQTT)
	if err := client.Start(); err != nil {
		log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		return nil
	}
	return &mqttBridge{client: client, publisher: mqtt.NewEventPublisher(client)}
}

func (b *mqttBridge) Close() {
	if b == nil {
		return
	}
	b.publisher.Close()
	b.client.Stop()
}
