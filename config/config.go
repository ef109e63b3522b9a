package config

import "sessionRelay/internal/editlog"

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Token struct {
		TTLMinutes int `mapstructure:"ttlMinutes"`
	} `mapstructure:"token"`
	// 阈值可覆盖（见 editlog），不配就用各档位默认值
	Thresholds struct {
		Batch    *editlog.BatchThresholds    `mapstructure:"batch"`
		Snapshot *editlog.SnapshotThresholds `mapstructure:"snapshot"`
	} `mapstructure:"thresholds"`
}
