package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Значения по умолчанию для параметров турнира; настройки классной комнаты
// могут их переопределить при создании турнира.
const (
	defaultAnswerTimeLimitMs = 30000
	defaultPointsPerWin      = 10
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL   string
	MigrationsURL string
	JWTSecretKey  string
	ServerPort    int

	AnswerTimeLimitMs int
	PointsPerWin      int
	CoinFlipTieBreak  bool
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	migrationsURL := os.Getenv("MIGRATIONS_URL")
	if migrationsURL == "" {
		migrationsURL = "file://migrations"
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080" // Порт по умолчанию
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	answerLimit, err := intEnv("ANSWER_TIME_LIMIT_MS", defaultAnswerTimeLimitMs)
	if err != nil {
		return nil, err
	}
	if answerLimit <= 0 {
		return nil, fmt.Errorf("ANSWER_TIME_LIMIT_MS must be positive, got %d", answerLimit)
	}

	pointsPerWin, err := intEnv("POINTS_PER_WIN", defaultPointsPerWin)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		MigrationsURL:     migrationsURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		AnswerTimeLimitMs: answerLimit,
		PointsPerWin:      pointsPerWin,
		CoinFlipTieBreak:  os.Getenv("COIN_FLIP_TIE_BREAK") == "true",
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return value, nil
}
