package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Backend API
	BackendBaseURL string
	BackendToken   string

	// 本地存储
	StorePath string

	// 逆地理编码
	AmapAPIKey      string
	GeocodeInterval time.Duration // 地址解码节流：距上次成功至少间隔这么久

	// 采样策略（针对行驶中的车辆调校）
	SampleMinInterval  time.Duration
	SampleMinDistanceM float64

	// 追踪
	FixTimeout         time.Duration // 首次定位超时，超时转入 error 状态
	FixStaleAfter      time.Duration // 单次定位可复用的采样新鲜度
	BackgroundInterval time.Duration // 后台上报周期

	// 定位权限（部署侧开关，对应设备端的授权状态）
	ForegroundLocationAllowed bool
	BackgroundLocationAllowed bool

	// 行车日志
	AutosaveDebounce time.Duration
	FuelEfficiency   float64 // 默认油耗系数（公里/升），车辆档案配置优先
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("PORT", "4000"),
		Debug:      getEnvBool("DEBUG", false),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8080"),
		BackendToken:   getEnv("BACKEND_TOKEN", ""),

		StorePath: getEnv("STORE_PATH", "fleettrack.db"),

		AmapAPIKey:      getEnv("AMAP_API_KEY", ""),
		GeocodeInterval: getEnvDuration("GEOCODE_INTERVAL", 5*time.Second),

		SampleMinInterval:  getEnvDuration("SAMPLE_MIN_INTERVAL", time.Second),
		SampleMinDistanceM: getEnvFloat("SAMPLE_MIN_DISTANCE_M", 3),

		FixTimeout:         getEnvDuration("FIX_TIMEOUT", 15*time.Second),
		FixStaleAfter:      getEnvDuration("FIX_STALE_AFTER", 5*time.Second),
		BackgroundInterval: getEnvDuration("BACKGROUND_REPORT_INTERVAL", 30*time.Second),

		ForegroundLocationAllowed: getEnvBool("FOREGROUND_LOCATION_ALLOWED", true),
		BackgroundLocationAllowed: getEnvBool("BACKGROUND_LOCATION_ALLOWED", true),

		AutosaveDebounce: getEnvDuration("AUTOSAVE_DEBOUNCE", 500*time.Millisecond),
		FuelEfficiency:   getEnvFloat("FUEL_EFFICIENCY_KM_PER_L", 10),
	}

	return cfg, nil
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
