package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"photo-indexer/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client ist der MQTT-Client für Ereignisse und Steuerbefehle
type Client struct {
	config   config.MQTTConfig
	client   mqtt.Client
	mu       sync.RWMutex
	handlers []MessageHandler
}

// MessageHandler verarbeitet eingehende Nachrichten auf dem Befehls-Topic
type MessageHandler interface {
	HandleMessage(topic string, payload []byte)
}

// MessageHandlerFunc erlaubt einfache Funktionen als MessageHandler
type MessageHandlerFunc func(topic string, payload []byte)

// HandleMessage implementiert MessageHandler
func (f MessageHandlerFunc) HandleMessage(topic string, payload []byte) { f(topic, payload) }

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		config:   cfg,
		handlers: make([]MessageHandler, 0),
	}
}

// Topic setzt ein Topic unterhalb des konfigurierten Präfixes zusammen
func (c *Client) Topic(parts ...string) string {
	prefix := strings.TrimRight(c.config.TopicPrefix, "/")
	if prefix == "" {
		prefix = "photo-indexer"
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// RegisterHandler registriert einen neuen MessageHandler für das Befehls-Topic
func (c *Client) RegisterHandler(handler MessageHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
	log.Debug("Registered new MQTT message handler")
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Last Will: Verfügbarkeit auf offline setzen, wenn die Verbindung abreißt
	opts.SetWill(c.Topic("availability"), "offline", 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop beendet den MQTT-Client
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		if err := c.PublishRetain(c.Topic("availability"), "offline"); err != nil {
			log.Debugf("Could not publish offline state: %v", err)
		}
		c.client.Disconnect(250)
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	if token := client.Publish(c.Topic("availability"), 1, true, "online"); token.Wait() && token.Error() != nil {
		log.Warnf("Failed to publish availability: %v", token.Error())
	}

	// Nach einem Reconnect neu abonnieren
	commandTopic := c.Topic("command", "#")
	if token := client.Subscribe(commandTopic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", commandTopic, token.Error())
	} else {
		log.Infof("Successfully subscribed to topic: %s", commandTopic)
	}
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	log.Debugf("Received MQTT message on topic: %s", msg.Topic())
	c.dispatch(msg.Topic(), msg.Payload())
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.RLock()
	handlers := append([]MessageHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		go handler.HandleMessage(topic, payload)
	}
}

// encodePayload wandelt Strings, Bytes, einfache Werte und Objekte (JSON) in Bytes um
func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return b, nil
	}
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := encodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
