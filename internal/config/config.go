package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	BaseURL    string `yaml:"base_url" env-default:"http://localhost:8080"`
	JWTSecret  string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	Mail       `yaml:"mail"`
	Scraper    `yaml:"scraper"`
	Sweep      `yaml:"sweep"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr       string        `yaml:"addr" env-default:"redis:6379"`
	Db         int           `yaml:"db" env-default:"1"`
	DefaultTTL time.Duration `yaml:"default_ttl" env-default:"1m"`
}

type RabbitMQ struct {
	URL            string `yaml:"url" env-required:"true"`
	QueueName      string `yaml:"queue_name" env-default:"email_queue"`
	WorkerPoolSize int    `yaml:"worker_pool_size" env-default:"10"`
}

// Mail selects how alert mail leaves the process: "queue" publishes to
// RabbitMQ for the email_sender worker, "smtp" sends inline, "log"
// only logs the message.
type Mail struct {
	Mode string `yaml:"mode" env-default:"log"`
	SMTP `yaml:"smtp"`
}

type SMTP struct {
	Host     string `yaml:"host" env-default:"smtp.gmail.com"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from"`
}

type Scraper struct {
	Timeout time.Duration `yaml:"timeout" env-default:"15s"`
}

type Sweep struct {
	Interval       time.Duration `yaml:"interval" env-default:"30m"`
	WorkerPoolSize int           `yaml:"worker_pool_size" env-default:"4"`
	OriginRPS      float64       `yaml:"origin_rps" env-default:"1"`
	OriginBurst    int           `yaml:"origin_burst" env-default:"2"`
}

func MustLoad(configPath string) *Config {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		configPath = path
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", configPath)
	}

	return &cfg
}
