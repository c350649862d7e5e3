package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileEnv = "CONFIG_FILE"

type Config struct {
	// Server
	ServerPort   string `yaml:"server_port"`
	Debug        bool   `yaml:"debug"`
	APIJWTSecret string `yaml:"api_jwt_secret"`

	// 会话记录存储：DatabaseURL 为空时写入 RecordFile
	DatabaseURL string `yaml:"database_url"`
	RecordFile  string `yaml:"record_file"`

	Renault  RenaultConfig  `yaml:"renault"`
	Switch   SwitchConfig   `yaml:"switch"`
	Telegram TelegramConfig `yaml:"telegram"`
	Pushover PushoverConfig `yaml:"pushover"`
	Redis    RedisConfig    `yaml:"redis"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	MQTT     MQTTConfig     `yaml:"mqtt"`

	Charging ChargingConfig `yaml:"charging"`
	Retry    RetryConfig    `yaml:"retry"`
}

// RenaultConfig Renault/Dacia 账户（Gigya + Kamereon）
type RenaultConfig struct {
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	Locale         string `yaml:"locale"`
	Country        string `yaml:"country"`
	GigyaURL       string `yaml:"gigya_url"`
	GigyaAPIKey    string `yaml:"gigya_api_key"`
	KamereonURL    string `yaml:"kamereon_url"`
	KamereonAPIKey string `yaml:"kamereon_api_key"`
	VIN            string `yaml:"vin"` // 为空时使用账户下第一辆车
}

// SwitchConfig 智能插座
type SwitchConfig struct {
	Kind       string `yaml:"kind"` // http | mqtt
	OnURL      string `yaml:"on_url"`
	OffURL     string `yaml:"off_url"`
	MQTTTopic  string `yaml:"mqtt_topic"` // 例如 cmnd/plug/POWER
	OnPayload  string `yaml:"on_payload"`
	OffPayload string `yaml:"off_payload"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

type PushoverConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type InfluxDBConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// MQTTConfig MQTT broker，同时用于插座控制和进度事件
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	EventTopic string `yaml:"event_topic"`
}

// ChargingConfig 充电策略
type ChargingConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	PlugCheckInterval     time.Duration `yaml:"plug_check_interval"`
	MinFinalSleep         time.Duration `yaml:"min_final_sleep"`
	MaxFinalSleep         time.Duration `yaml:"max_final_sleep"`
	FinalApproachExponent float64       `yaml:"final_approach_exponent"`
	DampingFactor         float64       `yaml:"damping_factor"`
	LowChargeThreshold    int           `yaml:"low_charge_threshold"`
	DefaultTarget         int           `yaml:"default_target"`
	DeclineCooldown       time.Duration `yaml:"decline_cooldown"`
	ReplyTimeout          time.Duration `yaml:"reply_timeout"`
	FullCapacityKWh       float64       `yaml:"full_capacity_kwh"`
	ChargeRateKW          float64       `yaml:"charge_rate_kw"`
	ExitTimeout           time.Duration `yaml:"exit_timeout"`
}

type RetryConfig struct {
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Default 返回全部默认值
func Default() *Config {
	return &Config{
		ServerPort: "4000",
		RecordFile: "charging_sessions.json",
		Renault: RenaultConfig{
			Locale:      "it_IT",
			Country:     "IT",
			GigyaURL:    "https://accounts.eu1.gigya.com",
			KamereonURL: "https://api-wired-prod-1-euw1.wrd-aws.com",
		},
		Switch: SwitchConfig{
			Kind:       "http",
			OnPayload:  "ON",
			OffPayload: "OFF",
		},
		Telegram: TelegramConfig{
			APIURL: "https://api.telegram.org",
		},
		MQTT: MQTTConfig{
			ClientID:   "chargepilot",
			EventTopic: "chargepilot/session/events",
		},
		Charging: ChargingConfig{
			PollInterval:          15 * time.Minute,
			PlugCheckInterval:     60 * time.Second,
			MinFinalSleep:         300 * time.Second,
			MaxFinalSleep:         1800 * time.Second,
			FinalApproachExponent: 1.5,
			DampingFactor:         0.9,
			LowChargeThreshold:    50,
			DefaultTarget:         80,
			DeclineCooldown:       7 * time.Hour,
			ReplyTimeout:          5 * time.Minute,
			FullCapacityKWh:       27,
			ChargeRateKW:          1.35,
			ExitTimeout:           time.Minute,
		},
		Retry: RetryConfig{
			Attempts:        3,
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := Default()

	// 可选的 YAML 配置文件，环境变量优先级更高
	if path := os.Getenv(configFileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("PORT", cfg.ServerPort)
	cfg.Debug = getEnvBool("DEBUG", cfg.Debug)
	cfg.APIJWTSecret = getEnv("API_JWT_SECRET", cfg.APIJWTSecret)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RecordFile = getEnv("RECORD_FILE", cfg.RecordFile)

	cfg.Renault.Email = getEnv("RENAULT_EMAIL", cfg.Renault.Email)
	cfg.Renault.Password = getEnv("RENAULT_PASSWORD", cfg.Renault.Password)
	cfg.Renault.Locale = getEnv("RENAULT_LOCALE", cfg.Renault.Locale)
	cfg.Renault.Country = getEnv("RENAULT_COUNTRY", cfg.Renault.Country)
	cfg.Renault.GigyaURL = getEnv("RENAULT_GIGYA_URL", cfg.Renault.GigyaURL)
	cfg.Renault.GigyaAPIKey = getEnv("RENAULT_GIGYA_API_KEY", cfg.Renault.GigyaAPIKey)
	cfg.Renault.KamereonURL = getEnv("RENAULT_KAMEREON_URL", cfg.Renault.KamereonURL)
	cfg.Renault.KamereonAPIKey = getEnv("RENAULT_KAMEREON_API_KEY", cfg.Renault.KamereonAPIKey)
	cfg.Renault.VIN = getEnv("RENAULT_VIN", cfg.Renault.VIN)

	cfg.Switch.Kind = getEnv("SWITCH_KIND", cfg.Switch.Kind)
	cfg.Switch.OnURL = getEnv("SWITCH_ON_URL", cfg.Switch.OnURL)
	cfg.Switch.OffURL = getEnv("SWITCH_OFF_URL", cfg.Switch.OffURL)
	cfg.Switch.MQTTTopic = getEnv("SWITCH_MQTT_TOPIC", cfg.Switch.MQTTTopic)
	cfg.Switch.OnPayload = getEnv("SWITCH_ON_PAYLOAD", cfg.Switch.OnPayload)
	cfg.Switch.OffPayload = getEnv("SWITCH_OFF_PAYLOAD", cfg.Switch.OffPayload)

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.Telegram.APIURL = getEnv("TELEGRAM_API_URL", cfg.Telegram.APIURL)

	cfg.Pushover.Token = getEnv("PUSHOVER_TOKEN", cfg.Pushover.Token)
	cfg.Pushover.User = getEnv("PUSHOVER_USER", cfg.Pushover.User)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.InfluxDB.Address = getEnv("INFLUXDB_ADDRESS", cfg.InfluxDB.Address)
	cfg.InfluxDB.Username = getEnv("INFLUXDB_USERNAME", cfg.InfluxDB.Username)
	cfg.InfluxDB.Password = getEnv("INFLUXDB_PASSWORD", cfg.InfluxDB.Password)
	cfg.InfluxDB.Database = getEnv("INFLUXDB_DATABASE", cfg.InfluxDB.Database)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.EventTopic = getEnv("MQTT_EVENT_TOPIC", cfg.MQTT.EventTopic)

	c := &cfg.Charging
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.PlugCheckInterval = getEnvDuration("PLUG_CHECK_INTERVAL", c.PlugCheckInterval)
	c.MinFinalSleep = getEnvDuration("MIN_FINAL_SLEEP", c.MinFinalSleep)
	c.MaxFinalSleep = getEnvDuration("MAX_FINAL_SLEEP", c.MaxFinalSleep)
	c.FinalApproachExponent = getEnvFloat("FINAL_APPROACH_EXPONENT", c.FinalApproachExponent)
	c.DampingFactor = getEnvFloat("DAMPING_FACTOR", c.DampingFactor)
	c.LowChargeThreshold = getEnvInt("LOW_CHARGE_THRESHOLD", c.LowChargeThreshold)
	c.DefaultTarget = getEnvInt("DEFAULT_TARGET", c.DefaultTarget)
	c.DeclineCooldown = getEnvDuration("DECLINE_COOLDOWN", c.DeclineCooldown)
	c.ReplyTimeout = getEnvDuration("REPLY_TIMEOUT", c.ReplyTimeout)
	c.FullCapacityKWh = getEnvFloat("FULL_CAPACITY_KWH", c.FullCapacityKWh)
	c.ChargeRateKW = getEnvFloat("CHARGE_RATE_KW", c.ChargeRateKW)
	c.ExitTimeout = getEnvDuration("EXIT_TIMEOUT", c.ExitTimeout)

	cfg.Retry.Attempts = getEnvInt("RETRY_ATTEMPTS", cfg.Retry.Attempts)
	cfg.Retry.InitialInterval = getEnvDuration("RETRY_INITIAL_INTERVAL", cfg.Retry.InitialInterval)
	cfg.Retry.MaxInterval = getEnvDuration("RETRY_MAX_INTERVAL", cfg.Retry.MaxInterval)
}

// Validate 检查策略参数范围
func (c *Config) Validate() error {
	ch := c.Charging
	if ch.DefaultTarget < 1 || ch.DefaultTarget > 100 {
		return fmt.Errorf("default target must be within 1..100, got %d", ch.DefaultTarget)
	}
	if ch.LowChargeThreshold < 0 || ch.LowChargeThreshold > 100 {
		return fmt.Errorf("low charge threshold must be within 0..100, got %d", ch.LowChargeThreshold)
	}
	if ch.PollInterval <= 0 || ch.PlugCheckInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if ch.MinFinalSleep <= 0 || ch.MaxFinalSleep < ch.MinFinalSleep {
		return fmt.Errorf("final approach sleep bounds are invalid: [%s, %s]", ch.MinFinalSleep, ch.MaxFinalSleep)
	}
	if ch.DampingFactor <= 0 || ch.DampingFactor > 1 {
		return fmt.Errorf("damping factor must be within (0, 1], got %v", ch.DampingFactor)
	}
	if ch.FullCapacityKWh <= 0 || ch.ChargeRateKW <= 0 {
		return fmt.Errorf("battery capacity and charge rate must be positive")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	switch c.Switch.Kind {
	case "http", "mqtt":
	default:
		return fmt.Errorf("unknown switch kind %q", c.Switch.Kind)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
