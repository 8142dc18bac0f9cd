package cfg

import (
	"io/ioutil"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Influx           bool   `yaml:"Influx"`
	InfluxURL        string `yaml:"InfluxURL"`
	InfuxAPIToken    string `yaml:"InfluxAPIToken"`
	InfluxOrgName    string `yaml:"InfluxOrgName"`
	InfluxBucketName string `yaml:"InfluxBucketName"`
	InfluxSkipTLS    bool   `yaml:"InfluxSkipTLS"`
	SerialPort       string `yaml:"SerialPort"`
	BaudRate         int    `yaml:"BaudRate"`
	Dialect          string `yaml:"Dialect"`
	ScanInputs       []int  `yaml:"ScanInputs"`
	PollingInterval  int64  `yaml:"PollingInterval"`
}

var configFileName = "ls370.yaml"

// InitConfig initializes the config from the config YAML file
func InitConfig() (*Config, error) {
	// Use lani appdata dir for LS370 plugin config
	cfgBytes, err := ioutil.ReadFile(filepath.Join(btcutil.AppDataDir("fmtd", false), configFileName))
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(cfgBytes, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SerialPort == "" {
		cfg.SerialPort = "/dev/ttyUSB1"
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if len(cfg.ScanInputs) == 0 {
		// the Model 370 has two measurement inputs
		cfg.ScanInputs = []int{1, 2}
	}
	return &cfg, nil
}
