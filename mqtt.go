package prolink

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBridge republishes Registry change events and completed DBClient
// query results to an MQTT broker, as an additive out-of-process observer
// alongside the synchronous in-process callbacks (§9 design note, §4.1/§4.2
// "(new)" additions in SPEC_FULL.md).
type MQTTBridge struct {
	client mqtt.Client
	config MQTTConfig
}

// changeEventPayload is the JSON body published on a registry change event.
type changeEventPayload struct {
	DeviceNumber int       `json:"device_number"`
	Timestamp    int64     `json:"timestamp"`
	Device       *deviceMQ `json:"device,omitempty"`
}

type deviceMQ struct {
	Model     string `json:"model"`
	IP        string `json:"ip"`
	PlayState string `json:"play_state"`
}

// resultEventPayload is the JSON body published when a DBClient request
// completes (successfully or not).
type resultEventPayload struct {
	Kind         string `json:"kind"`
	DeviceNumber int    `json:"device_number"`
	Timestamp    int64  `json:"timestamp"`
	Success      bool   `json:"success"`
}

func generateMQTTClientID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "prolink_" + hex.EncodeToString(buf)
}

func loadMQTTTLSConfig(cfg MQTTTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parsing CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// NewMQTTBridge connects to the broker named in cfg and returns a bridge
// ready to be attached to a Registry and/or DBClient.
func NewMQTTBridge(cfg MQTTConfig) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateMQTTClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	if cfg.TLS.Enabled {
		tlsCfg, err := loadMQTTTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("prolink: mqtt tls config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("prolink: mqtt bridge connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("prolink: mqtt bridge connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("prolink: mqtt connect: %w", token.Error())
	}

	return &MQTTBridge{client: client, config: cfg}, nil
}

func (b *MQTTBridge) topic(suffix string) string {
	if b.config.TopicPrefix == "" {
		return "prolink/" + suffix
	}
	return b.config.TopicPrefix + "/" + suffix
}

func (b *MQTTBridge) publish(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("prolink: mqtt marshal failed: %v", err)
		return
	}
	token := b.client.Publish(topic, b.config.QoS, b.config.Retain, data)
	token.Wait()
}

// PublishChange is called by Registry.notify (via an attached subscriber)
// on every change event.
func (b *MQTTBridge) PublishChange(r *Registry, deviceNumber int) {
	payload := changeEventPayload{DeviceNumber: deviceNumber, Timestamp: time.Now().Unix()}
	if d, ok := r.Get(deviceNumber); ok {
		payload.Device = &deviceMQ{Model: d.Model, IP: d.IP, PlayState: string(d.PlayState)}
	}
	b.publish(b.topic(fmt.Sprintf("devices/%d", deviceNumber)), payload)
}

// PublishResult is called by the DBClient after a request completes.
func (b *MQTTBridge) PublishResult(kind string, deviceNumber int, success bool) {
	payload := resultEventPayload{
		Kind:         kind,
		DeviceNumber: deviceNumber,
		Timestamp:    time.Now().Unix(),
		Success:      success,
	}
	b.publish(b.topic(fmt.Sprintf("queries/%s/%d", kind, deviceNumber)), payload)
}

// Disconnect cleanly closes the broker connection.
func (b *MQTTBridge) Disconnect() {
	b.client.Disconnect(250)
}
