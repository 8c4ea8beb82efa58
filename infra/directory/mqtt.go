package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/scraphaul/dispatch/core/model"
	corestore "github.com/scraphaul/dispatch/core/store"
	"github.com/scraphaul/dispatch/infra/logger"
)

// Config defines the connection parameters for the MQTT presence listener.
type Config struct {
	Broker        string      `json:"broker"`
	ClientID      string      `json:"client_id"`
	Username      string      `json:"username"`
	Password      string      `json:"password"`
	PresenceTopic string      `json:"presence_topic"`
	TTLSeconds    int         `json:"ttl_seconds"`
	UseTLS        bool        `json:"use_tls"`
	ClientCert    string      `json:"client_cert"`
	ClientKey     string      `json:"client_key"`
	CABundle      string      `json:"ca_bundle"`
	TLSConfig     *tls.Config `json:"-"`
}

const (
	defaultPresenceTopic = "vendors/presence/+"
	defaultPresenceTTL   = 90 * time.Second
)

// TTL returns the heartbeat freshness window.
func (c Config) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return defaultPresenceTTL
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// heartbeat is the JSON payload vendors publish on the presence topic.
type heartbeat struct {
	VendorID    string  `json:"vendor_id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	CallbackURL string  `json:"callback_url"`
	Available   bool    `json:"available"`
}

// PahoDirectory tracks vendor presence through MQTT heartbeats. Vendors
// publish a heartbeat on vendors/presence/<ref>; entries whose last
// heartbeat is older than the TTL drop out of the candidate set.
type PahoDirectory struct {
	cli   paho.Client
	topic string
	ttl   time.Duration
	log   logger.Logger
	now   func() time.Time

	mu      sync.RWMutex
	vendors map[string]model.VendorCandidate
}

var _ corestore.VendorDirectory = (*PahoDirectory)(nil)

// NewPahoDirectory connects to the broker and subscribes to the presence topic.
func NewPahoDirectory(cfg Config) (*PahoDirectory, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt directory requires a broker")
	}
	topic := cfg.PresenceTopic
	if topic == "" {
		topic = defaultPresenceTopic
	}

	d := &PahoDirectory{
		topic:   topic,
		ttl:     cfg.TTL(),
		log:     logger.New("vendor_directory"),
		now:     time.Now,
		vendors: make(map[string]model.VendorCandidate),
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnect = func(c paho.Client) {
		d.log.Infof("MQTT connected, subscribing to %s", d.topic)
		if token := c.Subscribe(d.topic, 1, d.onHeartbeat); token.Wait() && token.Error() != nil {
			d.log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		d.log.Errorf("connection lost: %v", err)
	}

	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	d.cli = cli
	return d, nil
}

func (d *PahoDirectory) onHeartbeat(_ paho.Client, msg paho.Message) {
	d.handleHeartbeat(msg.Payload())
}

func (d *PahoDirectory) handleHeartbeat(payload []byte) {
	var hb heartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		d.log.Errorf("invalid heartbeat payload: %v", err)
		return
	}
	if hb.VendorID == "" {
		d.log.Warnf("heartbeat without vendor_id dropped")
		return
	}
	d.mu.Lock()
	d.vendors[hb.VendorID] = model.VendorCandidate{
		VendorRef:   hb.VendorID,
		Location:    model.GeoPoint{Lat: hb.Lat, Lng: hb.Lng},
		CallbackURL: hb.CallbackURL,
		Available:   hb.Available,
		LastSeen:    d.now(),
	}
	d.mu.Unlock()
	d.log.Debugf("heartbeat from %s (available=%v)", hb.VendorID, hb.Available)
}

// Candidates returns the vendors whose last heartbeat is within the TTL.
// Stale entries are pruned as a side effect.
func (d *PahoDirectory) Candidates(_ context.Context) ([]model.VendorCandidate, error) {
	cutoff := d.now().Add(-d.ttl)
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.VendorCandidate, 0, len(d.vendors))
	for ref, v := range d.vendors {
		if v.LastSeen.Before(cutoff) {
			delete(d.vendors, ref)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Close disconnects from the broker.
func (d *PahoDirectory) Close() {
	if d.cli != nil && d.cli.IsConnected() {
		d.cli.Disconnect(250)
	}
}
