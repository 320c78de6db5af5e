// Package config reads and validates the YAML configuration of the bridge
// controller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"lautenbacher.net/gomcp2210/mcp2210"
	"lautenbacher.net/gomcp2210/transfer"
)

const CONFILE = "config.yml"

const (
	ModeLED         = "led"
	ModeTemperature = "temperature"
)

// MaxBitRate is the fastest SPI clock the MCP2210 supports.
const MaxBitRate = 12 * physic.MegaHertz

// Frequency is a physic.Frequency written in YAML as e.g. "6MHz".
type Frequency struct {
	physic.Frequency
}

func (f *Frequency) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	if err := f.Set(s); err != nil {
		return fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	return nil
}

func (f Frequency) MarshalYAML() (any, error) {
	return f.String(), nil
}

func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// Hertz returns the frequency as a whole number of Hz.
func (f Frequency) Hertz() uint32 {
	return uint32(f.Frequency / physic.Hertz)
}

type USBConfig struct {
	VendorID    uint16        `yaml:"VendorID" json:"VendorID"`
	ProductID   uint16        `yaml:"ProductID" json:"ProductID"`
	Interface   int           `yaml:"Interface" json:"Interface"`
	OutEndpoint int           `yaml:"OutEndpoint" json:"OutEndpoint"`
	InEndpoint  int           `yaml:"InEndpoint" json:"InEndpoint"`
	Timeout     time.Duration `yaml:"Timeout" json:"Timeout"`
	AutoDetach  bool          `yaml:"AutoDetach" json:"AutoDetach"`
}

type SPIConfig struct {
	BitRate             Frequency `yaml:"BitRate" json:"BitRate"`
	Mode                int       `yaml:"Mode" json:"Mode"`
	ChipSelect          int       `yaml:"ChipSelect" json:"ChipSelect"`
	CSToDataDelay       uint16    `yaml:"CSToDataDelay" json:"CSToDataDelay"`
	DataToCSDelay       uint16    `yaml:"DataToCSDelay" json:"DataToCSDelay"`
	InterByteDelay      uint16    `yaml:"InterByteDelay" json:"InterByteDelay"`
	BytesPerTransaction uint16    `yaml:"BytesPerTransaction" json:"BytesPerTransaction"`
}

type RetryConfig struct {
	Backoff     string        `yaml:"Backoff" json:"Backoff"`
	Delay       time.Duration `yaml:"Delay" json:"Delay"`
	MaxDelay    time.Duration `yaml:"MaxDelay" json:"MaxDelay"`
	MaxAttempts int           `yaml:"MaxAttempts" json:"MaxAttempts"`
}

type LEDConfig struct {
	SPI     SPIConfig `yaml:"SPI" json:"SPI"`
	Address byte      `yaml:"Address" json:"Address"`
	Pattern byte      `yaml:"Pattern" json:"Pattern"`
}

type TemperatureConfig struct {
	SPI      SPIConfig     `yaml:"SPI" json:"SPI"`
	Interval time.Duration `yaml:"Interval" json:"Interval"`
	Window   int           `yaml:"Window" json:"Window"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"Enabled" json:"Enabled"`
	Listen  string `yaml:"Listen" json:"Listen"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level" json:"Level"`
	Format string `yaml:"Format" json:"Format"`
	File   string `yaml:"File" json:"File"`
}

type Config struct {
	Mode        string            `yaml:"Mode"`
	USB         USBConfig         `yaml:"USB"`
	Retry       RetryConfig       `yaml:"Retry"`
	LED         LEDConfig         `yaml:"LED"`
	Temperature TemperatureConfig `yaml:"Temperature"`
	Monitor     MonitorConfig     `yaml:"Monitor"`
	Logging     LoggingConfig     `yaml:"Logging"`
	Configfile  string            `yaml:"-"`
}

// Default returns the settings of the original evaluation board wiring:
// LED expander on GP4, TC77 on GP7, both clocked at 6 MHz in mode 0.
func Default() Config {
	return Config{
		Mode: ModeTemperature,
		USB: USBConfig{
			VendorID:    0x04D8,
			ProductID:   0x00DE,
			Interface:   0,
			OutEndpoint: 0x01,
			InEndpoint:  0x81,
			Timeout:     time.Second,
			AutoDetach:  true,
		},
		Retry: RetryConfig{Backoff: string(transfer.BackoffNone)},
		LED: LEDConfig{
			SPI: SPIConfig{
				BitRate:             Frequency{6 * physic.MegaHertz},
				ChipSelect:          4,
				BytesPerTransaction: 3,
			},
			Pattern: 0xFF,
		},
		Temperature: TemperatureConfig{
			SPI: SPIConfig{
				BitRate:             Frequency{6 * physic.MegaHertz},
				ChipSelect:          7,
				BytesPerTransaction: 2,
			},
			Interval: time.Second,
			Window:   60,
		},
		Monitor: MonitorConfig{Listen: ":8080"},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
	}
}

// ReadConfig decodes cfile over the defaults and validates the result.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Mode = strings.ToLower(strings.TrimSpace(conf.Mode))
	conf.Configfile = cfile

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeLED, ModeTemperature:
	default:
		errs = append(errs, fmt.Errorf("Mode must be %q or %q, got %q", ModeLED, ModeTemperature, c.Mode))
	}

	if c.USB.VendorID == 0 || c.USB.ProductID == 0 {
		errs = append(errs, errors.New("USB.VendorID and USB.ProductID must be set"))
	}
	if c.USB.OutEndpoint&0x80 != 0 || c.USB.OutEndpoint&0x0F == 0 {
		errs = append(errs, fmt.Errorf("USB.OutEndpoint 0x%02X is not an OUT endpoint", c.USB.OutEndpoint))
	}
	if c.USB.InEndpoint&0x80 == 0 || c.USB.InEndpoint&0x0F == 0 {
		errs = append(errs, fmt.Errorf("USB.InEndpoint 0x%02X is not an IN endpoint", c.USB.InEndpoint))
	}
	if c.USB.Timeout < 0 {
		errs = append(errs, errors.New("USB.Timeout must not be negative"))
	}

	if _, err := c.RetryPolicy(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, c.LED.SPI.validate("LED.SPI")...)
	if c.LED.Address > 3 {
		errs = append(errs, fmt.Errorf("LED.Address must be between 0 and 3, got %d", c.LED.Address))
	}

	errs = append(errs, c.Temperature.SPI.validate("Temperature.SPI")...)
	if c.Temperature.Interval <= 0 {
		errs = append(errs, errors.New("Temperature.Interval must be positive"))
	}
	if c.Temperature.Window < 1 {
		errs = append(errs, errors.New("Temperature.Window must be at least 1"))
	}

	if c.Monitor.Enabled && c.Monitor.Listen == "" {
		errs = append(errs, errors.New("Monitor.Listen must be set when the monitor is enabled"))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("Logging.Level %q must be one of DEBUG, INFO, WARN, ERROR", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("Logging.Format %q must be text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (s SPIConfig) validate(section string) []error {
	var errs []error
	if s.BitRate.Frequency <= 0 || s.BitRate.Frequency > MaxBitRate {
		errs = append(errs, fmt.Errorf("%s.BitRate must be between 1Hz and %s, got %s", section, MaxBitRate, s.BitRate))
	}
	if s.Mode < 0 || s.Mode > 3 {
		errs = append(errs, fmt.Errorf("%s.Mode must be between 0 and 3, got %d", section, s.Mode))
	}
	if _, err := mcp2210.ActiveChipSelect(s.ChipSelect); err != nil {
		errs = append(errs, fmt.Errorf("%s.ChipSelect: %w", section, err))
	}
	if s.BytesPerTransaction == 0 || s.BytesPerTransaction > mcp2210.MaxSpiPayload {
		errs = append(errs, fmt.Errorf("%s.BytesPerTransaction must be between 1 and %d, got %d", section, mcp2210.MaxSpiPayload, s.BytesPerTransaction))
	}
	return errs
}

// TransferSettings converts the section into bridge SPI settings. The
// section must have passed Validate.
func (s SPIConfig) TransferSettings() mcp2210.SpiTransferSettings {
	active, _ := mcp2210.ActiveChipSelect(s.ChipSelect)
	return mcp2210.SpiTransferSettings{
		BitRate:             s.BitRate.Hertz(),
		IdleChipSelect:      0xFFFF,
		ActiveChipSelect:    active,
		CSToDataDelay:       s.CSToDataDelay,
		DataToCSDelay:       s.DataToCSDelay,
		InterByteDelay:      s.InterByteDelay,
		BytesPerTransaction: s.BytesPerTransaction,
		Mode:                spi.Mode(s.Mode),
	}
}

// RetryPolicy converts the Retry section.
func (c *Config) RetryPolicy() (transfer.RetryPolicy, error) {
	backoff, err := transfer.ParseBackoff(c.Retry.Backoff)
	if err != nil {
		return transfer.RetryPolicy{}, fmt.Errorf("Retry.Backoff: %w", err)
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 {
		return transfer.RetryPolicy{}, errors.New("Retry.Delay and Retry.MaxDelay must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return transfer.RetryPolicy{}, errors.New("Retry.MaxAttempts must not be negative")
	}
	return transfer.RetryPolicy{
		Backoff:     backoff,
		Delay:       c.Retry.Delay,
		MaxDelay:    c.Retry.MaxDelay,
		MaxAttempts: c.Retry.MaxAttempts,
	}, nil
}
