package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string `yaml:"port"`
		RequiredOrigin string `yaml:"required_origin"`
	} `yaml:"server"`
	Store struct {
		// Backend is "dynamo" or "pebble". Pebble is the single-node
		// local store; dynamo is the deployed one.
		Backend          string `yaml:"backend"`
		DynamoDBTable    string `yaml:"dynamodb_table"`
		DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
		PebblePath       string `yaml:"pebble_path"`
	} `yaml:"store"`
	Redis struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"redis"`
	SQS struct {
		Endpoint  string `yaml:"endpoint"`
		QueueName string `yaml:"queue_name"`
	} `yaml:"sqs"`
	JWTSecret string `yaml:"jwt_secret"`
	DevMode   bool   `yaml:"dev_mode"`
}

// Load merges, lowest precedence first: defaults, the optional YAML
// file named by CONFIG_FILE, then environment variables. In dev mode a
// .env file is loaded before the env is read.
func Load() (Config, error) {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Store.Backend = "dynamo"
	cfg.Store.DynamoDBTable = "WePaint"
	cfg.Store.PebblePath = "./wepaint-data"
	cfg.SQS.QueueName = "PurgeLayerStrokesQueue"

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if os.Getenv("DEV_MODE") == "true" {
		cfg.DevMode = true
		// Missing .env is fine in dev; everything has a default or env var
		_ = godotenv.Load()
	}

	overrideString(&cfg.Server.Port, "HOST_PORT")
	overrideString(&cfg.Server.RequiredOrigin, "REQUIRED_ORIGIN")
	overrideString(&cfg.Store.Backend, "STORE_BACKEND")
	overrideString(&cfg.Store.DynamoDBTable, "DYNAMODB_TABLE")
	overrideString(&cfg.Store.DynamoDBEndpoint, "DYNAMODB_ENDPOINT")
	overrideString(&cfg.Store.PebblePath, "PEBBLE_PATH")
	overrideString(&cfg.Redis.Endpoint, "REDIS_ENDPOINT")
	overrideString(&cfg.SQS.Endpoint, "SQS_ENDPOINT")
	overrideString(&cfg.SQS.QueueName, "SQS_QUEUE_NAME")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")

	if cfg.JWTSecret == "" && !cfg.DevMode {
		return Config{}, fmt.Errorf("JWT_SECRET is required outside dev mode")
	}

	return cfg, nil
}

func overrideString(dst *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}
