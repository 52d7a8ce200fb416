// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	SenderKafka     = "kafka"
	SenderSimulated = "simulated"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	RateLimit    RateLimitConfig    `yaml:"rateLimit"`
	Quota        QuotaConfig        `yaml:"quota"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Notification NotificationConfig `yaml:"notification"`
	Bulk         BulkConfig         `yaml:"bulk"`
	Infra        InfraConfig        `yaml:"infra"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	Store    string `yaml:"store"`
	Seed     bool   `yaml:"seed"`
}

type MySQLConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
	MaxIdleConns int           `yaml:"maxIdleConns"`
	LockTimeout  time.Duration `yaml:"lockTimeout"`
}

type RedisConfig struct {
	Addrs        string        `yaml:"addrs"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
}

type KafkaConfig struct {
	Brokers           string `yaml:"brokers"`
	NotificationTopic string `yaml:"notificationTopic"`
}

type LimiterConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RateLimitConfig struct {
	UserLimit    int           `yaml:"userLimit"`
	UserWindow   time.Duration `yaml:"userWindow"`
	Global       LimiterConfig `yaml:"global"`
	Fallback     LimiterConfig `yaml:"fallback"`
	FallbackName string        `yaml:"fallbackName"`
}

type QuotaConfig struct {
	DailyCap int64  `yaml:"dailyCap"`
	Timezone string `yaml:"timezone"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type NotificationConfig struct {
	Sender        string        `yaml:"sender"`
	MaxConcurrent int64         `yaml:"maxConcurrent"`
	MaxWait       time.Duration `yaml:"maxWait"`
	SendTimeout   time.Duration `yaml:"sendTimeout"`
	Latency       time.Duration `yaml:"latency"`
	FailureRate   float64       `yaml:"failureRate"`
}

type BulkConfig struct {
	ChunkSize   int   `yaml:"chunkSize"`
	Parallelism int   `yaml:"parallelism"`
	UserFrom    int64 `yaml:"userFrom"`
	UserTo      int64 `yaml:"userTo"`
	MaxRange    int64 `yaml:"maxRange"` // 单次任务允许的最大用户数
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

// Default 返回所有配置项的默认值。
func Default() Config {
	return Config{
		App:   AppConfig{Name: "reward-service", Port: 8080, LogLevel: "info", Store: StoreMySQL, Seed: true},
		MySQL: MySQLConfig{MaxOpenConns: 50, MaxIdleConns: 10, LockTimeout: 3 * time.Second},
		Redis: RedisConfig{
			Addrs:        "localhost:6379",
			DialTimeout:  500 * time.Millisecond,
			ReadTimeout:  300 * time.Millisecond,
			WriteTimeout: 300 * time.Millisecond,
			MaxRetries:   1,
		},
		Kafka: KafkaConfig{Brokers: "localhost:9092", NotificationTopic: "reward-notifications"},
		RateLimit: RateLimitConfig{
			UserLimit:    10,
			UserWindow:   time.Second,
			Global:       LimiterConfig{RPS: 1000, Burst: 1000},
			Fallback:     LimiterConfig{RPS: 100, Burst: 100},
			FallbackName: "localFallbackLimiter",
		},
		Quota:   QuotaConfig{DailyCap: 3, Timezone: "UTC"},
		Catalog: CatalogConfig{CacheTTL: 30 * time.Second},
		Notification: NotificationConfig{
			Sender:        SenderSimulated,
			MaxConcurrent: 25,
			SendTimeout:   2 * time.Second,
			Latency:       100 * time.Millisecond,
			FailureRate:   0.1,
		},
		Bulk: BulkConfig{ChunkSize: 100, Parallelism: 4, UserFrom: 1, UserTo: 1000, MaxRange: 100000},
		Infra: InfraConfig{
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second},
		},
	}
}

// Load 读取 YAML 配置（path 为空或文件不存在时只使用默认值），再叠加环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrapf(err, "config: parse %s", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.App.Name = getEnv("REWARD_APP_NAME", c.App.Name)
	c.App.LogLevel = getEnv("REWARD_LOG_LEVEL", c.App.LogLevel)
	c.App.Store = getEnv("REWARD_STORE", c.App.Store)
	c.MySQL.DSN = getEnv("REWARD_MYSQL_DSN", c.MySQL.DSN)
	c.Redis.Addrs = getEnv("REWARD_REDIS_ADDRS", c.Redis.Addrs)
	c.Redis.Password = getEnv("REWARD_REDIS_PASSWORD", c.Redis.Password)
	c.Kafka.Brokers = getEnv("REWARD_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Notification.Sender = getEnv("REWARD_NOTIFICATION_SENDER", c.Notification.Sender)
	c.Quota.Timezone = getEnv("REWARD_QUOTA_TIMEZONE", c.Quota.Timezone)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", c.Infra.Zookeeper.Servers)

	if v, ok := os.LookupEnv("REWARD_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "config: REWARD_HTTP_PORT=%q", v)
		}
		c.App.Port = port
	}
	if v, ok := os.LookupEnv("REWARD_QUOTA_DAILY_CAP"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "config: REWARD_QUOTA_DAILY_CAP=%q", v)
		}
		c.Quota.DailyCap = n
	}
	return nil
}

// Validate 检查配置的取值范围。
func (c *Config) Validate() error {
	var problems []string
	if c.App.Port <= 0 {
		problems = append(problems, "app.port must be positive")
	}
	if c.App.Store != StoreMySQL && c.App.Store != StoreMemory {
		problems = append(problems, fmt.Sprintf("app.store %q is not one of mysql|memory", c.App.Store))
	}
	if c.App.Store == StoreMySQL && c.MySQL.DSN == "" {
		problems = append(problems, "mysql.dsn is required for the mysql store")
	}
	if c.RateLimit.UserLimit <= 0 || c.RateLimit.UserWindow <= 0 {
		problems = append(problems, "rateLimit.userLimit and rateLimit.userWindow must be positive")
	}
	if c.Quota.DailyCap <= 0 {
		problems = append(problems, "quota.dailyCap must be positive")
	}
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("quota.timezone %q: %v", c.Quota.Timezone, err))
	}
	if c.Notification.Sender != SenderKafka && c.Notification.Sender != SenderSimulated {
		problems = append(problems, fmt.Sprintf("notification.sender %q is not one of kafka|simulated", c.Notification.Sender))
	}
	if c.Notification.MaxConcurrent <= 0 {
		problems = append(problems, "notification.maxConcurrent must be positive")
	}
	if c.Bulk.ChunkSize <= 0 {
		problems = append(problems, "bulk.chunkSize must be positive")
	}
	if c.Bulk.MaxRange <= 0 {
		problems = append(problems, "bulk.maxRange must be positive")
	} else if c.Bulk.UserFrom <= 0 || c.Bulk.UserTo < c.Bulk.UserFrom || c.Bulk.UserTo-c.Bulk.UserFrom >= c.Bulk.MaxRange {
		problems = append(problems, "bulk.userFrom/userTo must form a range within bulk.maxRange")
	}
	if len(problems) > 0 {
		return errors.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location 返回配额日期使用的时区，Validate 之后调用不会失败。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv 从环境变量中读取配置，不存在时返回 fallback。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
