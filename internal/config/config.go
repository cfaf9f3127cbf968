// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервиса.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RabbitMQURL             string `yaml:"rabbitmq_url"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	AIProvider              `yaml:"ai_provider"`
	BillingProvider         `yaml:"billing_provider"`
	PlanLimits              `yaml:"plan_limits"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"60s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"120s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для проверки jwt-токена внешнего провайдера аутентификации.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// AIProvider структура для настройки клиента генеративной модели.
type AIProvider struct {
	AIAPIURL  string        `yaml:"api_url"`
	AIAPIKey  string        `yaml:"api_key" env:"AI_API_KEY"`
	Model     string        `yaml:"model" env-default:"gemini-3-flash-preview"`
	AITimeout time.Duration `yaml:"timeout" env-default:"120s"`
}

// BillingProvider структура для настройки биллинг-провайдера:
// доступ к API, секрет вебхуков и привязки product id к тарифам.
type BillingProvider struct {
	BillingAPIURL      string `yaml:"api_url"`
	AccessToken        string `yaml:"access_token" env:"BILLING_ACCESS_TOKEN"`
	WebhookSecret      string `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
	ProductIDPro       string `yaml:"product_id_pro"`
	ProductIDUnlimited string `yaml:"product_id_unlimited"`
	SuccessURL         string `yaml:"success_url"`
	PortalReturnURL    string `yaml:"portal_return_url"`
}

// PlanLimits месячные лимиты чат-запросов по тарифам.
// Загружаются один раз при старте и дальше не меняются.
type PlanLimits struct {
	Free int `yaml:"free" env-default:"10"`
	Pro  int `yaml:"pro" env-default:"100"`
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH.
// При любой ошибке завершает процесс.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
