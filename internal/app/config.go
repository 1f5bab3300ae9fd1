package app

import (
	"time"

	"github.com/spraynsniff/storefront/internal/backend"
	"github.com/spraynsniff/storefront/internal/messaging/kafka"
)

// Драйверы хранилища снапшотов корзин.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска storefront.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver string
	// FileDir — каталог снапшотов для драйвера file.
	FileDir string
	// FileWatch перечитывает корзины при изменении файлов другим процессом (например, cartctl).
	FileWatch           bool
	PostgresDSN         string
	PostgresAutoMigrate bool

	APIURL         string
	APITimeout     time.Duration
	SubmissionsURL string

	KafkaBrokers       string
	OutboxTopic        string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxRetention — срок хранения отправленных событий; 0 отключает очистку.
	OutboxRetention time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		FileDir:             "./data/carts",
		FileWatch:           true,
		PostgresAutoMigrate: true,
		APIURL:              backend.DefaultBaseURL,
		APITimeout:          15 * time.Second,
		OutboxTopic:         kafka.TopicCartEvents,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxRetention:     24 * time.Hour,
	}
}
