package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderPaid        string `mapstructure:"order_paid"`        // 支付成功，通知发货
	PaymentReconcile string `mapstructure:"payment_reconcile"` // 超时后迟到的支付回调，转人工对账
}

type BusinessConfig struct {
	OrderTimeoutMinutes int   `mapstructure:"order_timeout_minutes"` // 待支付订单超时阈值
	ExpireSweepSeconds  int   `mapstructure:"expire_sweep_seconds"`  // 超时扫描间隔
	ExpireBatchSize     int   `mapstructure:"expire_batch_size"`     // 每轮扫描处理的订单数上限
	DefaultWarehouseID  int64 `mapstructure:"default_warehouse_id"`  // 单仓模式下的默认仓库
	MaxRetryCount       int   `mapstructure:"max_retry_count"`       // outbox 消息最大重试次数
	SnowflakeWorkerID   int64 `mapstructure:"snowflake_worker_id"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
