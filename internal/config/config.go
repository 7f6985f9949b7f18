package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Gateway struct {
	ReqEndpoint string `yaml:"req_endpoint"`
	SubEndpoint string `yaml:"sub_endpoint"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

type Breaker struct {
	SentinelPath string `yaml:"sentinel_path"`
}

type Engine struct {
	Symbol          string  `yaml:"symbol"`
	Volume          float64 `yaml:"volume"`
	MaxIterations   int     `yaml:"max_iterations"`
	OrderRatePerSec float64 `yaml:"order_rate_per_sec"`
	MaxSpread       float64 `yaml:"max_spread"`
}

type Mock struct {
	Enabled      bool    `yaml:"enabled"`
	Ticks        int     `yaml:"ticks"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	BasePrice    float64 `yaml:"base_price"`
	SpreadPoints float64 `yaml:"spread_points"`
}

type Root struct {
	Gateway     Gateway `yaml:"gateway"`
	Breaker     Breaker `yaml:"breaker"`
	Engine      Engine  `yaml:"engine"`
	Mock        Mock    `yaml:"mock"`
	JournalPath string  `yaml:"journal_path"`
	ReportPath  string  `yaml:"report_path"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

// Default returns the configuration used when no file is given.
func Default() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.Gateway.ReqEndpoint == "" {
		c.Gateway.ReqEndpoint = "tcp://127.0.0.1:5555"
	}
	if c.Gateway.SubEndpoint == "" {
		c.Gateway.SubEndpoint = "tcp://127.0.0.1:5556"
	}
	if c.Gateway.TimeoutMs == 0 {
		c.Gateway.TimeoutMs = 5000
	}
	if c.Breaker.SentinelPath == "" {
		c.Breaker.SentinelPath = filepath.Join(os.TempDir(), "mt5_circuit_breaker.lock")
	}
	if c.Engine.Symbol == "" {
		c.Engine.Symbol = "EURUSD"
	}
	if c.Engine.Volume == 0 {
		c.Engine.Volume = 0.01
	}
	if c.Engine.MaxSpread == 0 {
		c.Engine.MaxSpread = 0.0003
	}
	if c.Mock.Ticks == 0 {
		c.Mock.Ticks = 100
	}
	if c.Mock.RatePerSec == 0 {
		c.Mock.RatePerSec = 10
	}
	if c.Mock.BasePrice == 0 {
		c.Mock.BasePrice = 1.1000
	}
	if c.Mock.SpreadPoints == 0 {
		c.Mock.SpreadPoints = 0.0002
	}
	if c.JournalPath == "" {
		c.JournalPath = "data/dispatch.jsonl"
	}
	if c.ReportPath == "" {
		c.ReportPath = "data/run_report.json"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = "127.0.0.1:8090"
	}
}
