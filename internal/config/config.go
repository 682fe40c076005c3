// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"airnode/pkg/eventbus"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// CredentialsConfig holds the three values the node cannot start without.
type CredentialsConfig struct {
	SSID         string `json:"ssid"`
	WLANPassword string `json:"wlan_password"`
	AuthKey      string `json:"auth_key"`
}

type NodeConfig struct {
	DeviceID               string `json:"device_id"`
	ClimateIntervalSeconds int    `json:"climate_interval_seconds"`
	GasIntervalSeconds     int    `json:"gas_interval_seconds"`
	PollIntervalMs         int    `json:"poll_interval_ms"`
	WarmupSamples          *int   `json:"warmup_samples"`
	InboxSize              int    `json:"inbox_size"`
}

type ClimateConfig struct {
	Driver        string `json:"driver"` // "bme280" or "modbus"
	I2CBus        string `json:"i2c_bus"`
	BME280Address uint16 `json:"bme280_address"`
	ModbusConfig  string `json:"modbus_config"`
}

type GasConfig struct {
	I2CBus  string `json:"i2c_bus"`
	Address uint16 `json:"address"`
}

type RemoteConfig struct {
	Transport    string `json:"transport"` // "mqtt" or "websocket"
	MQTTBroker   string `json:"mqtt_broker"`
	MQTTPort     int    `json:"mqtt_port"`
	TopicPrefix  string `json:"topic_prefix"`
	WebSocketURL string `json:"websocket_url"`
}

type OTAConfig struct {
	ListenAddr string `json:"listen_addr"`
	StagingDir string `json:"staging_dir"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type HistoryConfig struct {
	SnapshotMinutes int `json:"snapshot_minutes"`
	RetentionHours  int `json:"retention_hours"`
}

type DataLoggerConfig struct {
	EmonCMSAddr     string `json:"emoncms_addr"`
	EmonCMSApiKey   string `json:"emoncms_apikey"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type Config struct {
	Credentials CredentialsConfig `json:"credentials"`
	Node        NodeConfig        `json:"node"`
	Climate     ClimateConfig     `json:"climate"`
	Gas         GasConfig         `json:"gas"`
	Remote      RemoteConfig      `json:"remote"`
	OTA         OTAConfig         `json:"ota"`
	HTTP        HTTPConfig        `json:"http"`
	History     HistoryConfig     `json:"history"`
	DataLogger  DataLoggerConfig  `json:"datalogger"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	DataDir  string        `json:"-"`
	RootDir  string        `json:"-"`
}

func LoadFile(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open config: %v", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		log.Fatalf("config %s: %v", path, err)
	}
	return c
}

// Parse decodes, applies defaults and validates.
func Parse(r io.Reader) (*Config, error) {
	var c Config
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Node.DeviceID == "" {
		// stable across restarts on the same host
		host, _ := os.Hostname()
		c.Node.DeviceID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
	}
	if c.Node.ClimateIntervalSeconds == 0 {
		c.Node.ClimateIntervalSeconds = 2
	}
	if c.Node.GasIntervalSeconds == 0 {
		c.Node.GasIntervalSeconds = 1
	}
	if c.Node.PollIntervalMs == 0 {
		c.Node.PollIntervalMs = 100
	}
	if c.Node.WarmupSamples == nil {
		n := 15
		c.Node.WarmupSamples = &n
	}
	if c.Node.InboxSize == 0 {
		c.Node.InboxSize = 32
	}
	if c.Climate.Driver == "" {
		c.Climate.Driver = "bme280"
	}
	if c.Climate.BME280Address == 0 {
		c.Climate.BME280Address = 0x76
	}
	if c.Gas.Address == 0 {
		c.Gas.Address = 0x58
	}
	if c.Remote.Transport == "" {
		c.Remote.Transport = "mqtt"
	}
	if c.Remote.MQTTPort == 0 {
		c.Remote.MQTTPort = 1883
	}
	if c.Remote.TopicPrefix == "" {
		c.Remote.TopicPrefix = "airnode"
	}
	if c.OTA.ListenAddr == "" {
		c.OTA.ListenAddr = ":8266"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.History.SnapshotMinutes == 0 {
		c.History.SnapshotMinutes = 15
	}
	if c.History.RetentionHours == 0 {
		c.History.RetentionHours = 24
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.SSID == "" {
		errs = append(errs, errors.New("credentials.ssid is required"))
	}
	if c.Credentials.WLANPassword == "" {
		errs = append(errs, errors.New("credentials.wlan_password is required"))
	}
	if c.Credentials.AuthKey == "" {
		errs = append(errs, errors.New("credentials.auth_key is required"))
	}

	switch c.Climate.Driver {
	case "bme280":
	case "modbus":
		if c.Climate.ModbusConfig == "" {
			errs = append(errs, errors.New("climate.modbus_config is required for the modbus driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("climate.driver %q is not bme280 or modbus", c.Climate.Driver))
	}

	switch c.Remote.Transport {
	case "mqtt":
		if c.Remote.MQTTBroker == "" {
			errs = append(errs, errors.New("remote.mqtt_broker is required for mqtt"))
		}
	case "websocket":
		if c.Remote.WebSocketURL == "" {
			errs = append(errs, errors.New("remote.websocket_url is required for websocket"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.transport %q is not mqtt or websocket", c.Remote.Transport))
	}

	if c.Node.ClimateIntervalSeconds < 0 || c.Node.GasIntervalSeconds < 0 || *c.Node.WarmupSamples < 0 {
		errs = append(errs, errors.New("node intervals and warmup_samples must not be negative"))
	}
	return errors.Join(errs...)
}

func (n NodeConfig) ClimateInterval() time.Duration {
	return time.Duration(n.ClimateIntervalSeconds) * time.Second
}

func (n NodeConfig) GasInterval() time.Duration {
	return time.Duration(n.GasIntervalSeconds) * time.Second
}

func (n NodeConfig) PollInterval() time.Duration {
	return time.Duration(n.PollIntervalMs) * time.Millisecond
}
