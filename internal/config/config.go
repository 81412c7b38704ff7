package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	WorkerID int64  `mapstructure:"worker_id"` // 雪花算法机器ID，多实例部署时必须不同
}

// DatabaseConfig 数据库配置
// driver 可选 postgres / mysql / sqlite，设置了 dsn 时忽略 host/port 等字段
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 用户锁：持有时长、抢锁重试间隔与次数，重试耗尽返回 ErrBusy
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
	LockMaxRetries    int           `mapstructure:"lock_max_retries"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PetalEvents      string `mapstructure:"petal_events"`
	ModerationEvents string `mapstructure:"moderation_events"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
}

type StripeConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	PetalsPerUnit int64  `mapstructure:"petals_per_unit"`
}

// BusinessConfig 业务参数
// 所有"每日"重置（每日签到、每日任务）统一使用 Timezone 计算日期
type BusinessConfig struct {
	Timezone            string        `mapstructure:"timezone"`
	DailyGrantAmount    int64         `mapstructure:"daily_grant_amount"`
	GachaCost           int64         `mapstructure:"gacha_cost"`
	DailyQuestCount     int           `mapstructure:"daily_quest_count"`
	QuestBacklogLimit   int           `mapstructure:"quest_backlog_limit"`
	ReportHideThreshold int           `mapstructure:"report_hide_threshold"`
	MaxRetryCount       int           `mapstructure:"max_retry_count"`
	OutboxInterval      time.Duration `mapstructure:"outbox_interval"`
	AuditInterval       time.Duration `mapstructure:"audit_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "otakumori.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.lock_ttl", "30s")
	v.SetDefault("redis.lock_retry_interval", "100ms")
	v.SetDefault("redis.lock_max_retries", 30)

	v.SetDefault("kafka.topic.petal_events", "otakumori.petal-events")
	v.SetDefault("kafka.topic.moderation_events", "otakumori.moderation-events")

	v.SetDefault("auth.jwt_secret", "otakumori-dev-secret")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("stripe.petals_per_unit", 10)

	v.SetDefault("business.timezone", "America/New_York")
	v.SetDefault("business.daily_grant_amount", 10)
	v.SetDefault("business.gacha_cost", 50)
	v.SetDefault("business.daily_quest_count", 3)
	v.SetDefault("business.quest_backlog_limit", 20)
	v.SetDefault("business.report_hide_threshold", 5)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval", "500ms")
	v.SetDefault("business.audit_interval", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default 仅包含默认值的配置（测试使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig 加载配置文件
// configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OTAKUMORI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验业务参数
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Business.Timezone); err != nil {
		return fmt.Errorf("business.timezone %q: %w", c.Business.Timezone, err)
	}
	if c.Business.DailyGrantAmount <= 0 {
		return fmt.Errorf("business.daily_grant_amount 必须大于0")
	}
	if c.Business.GachaCost <= 0 {
		return fmt.Errorf("business.gacha_cost 必须大于0")
	}
	if c.Business.ReportHideThreshold <= 0 {
		return fmt.Errorf("business.report_hide_threshold 必须大于0")
	}
	if c.Business.DailyQuestCount <= 0 {
		return fmt.Errorf("business.daily_quest_count 必须大于0")
	}
	return nil
}
