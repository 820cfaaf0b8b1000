package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// 所有组件在启动时接收同一份配置，不依赖隐藏的全局状态。
type Config struct {
	BotID string // 实例命名空间，所有 Redis key 以 "{BotID}:" 开头

	// 媒体文件目录
	MediaDir     string // 下载的音视频文件根目录: MediaDir/audios, MediaDir/videos
	ThumbnailDir string // 封面图目录

	// 搜索服务
	ProviderBaseURL string // 外部歌曲搜索服务地址
	FFprobePath     string // ffprobe 可执行文件路径，用于探测视频时长

	// 推流参数
	JoinSettleDelay   time.Duration // 重新入会前等待传输层释放资源的时间
	StreamSettleDelay time.Duration // 切流后查询已播放时长前的等待时间
	MaxJoinRetries    int           // 零时长守卫的最大重试次数

	// MySQL配置（房间注册表）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置（归档存储）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// 运维接口
	OpsAddr string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	mediaBase := getEnv("MEDIA_DIR", "media")

	return &Config{
		BotID: getEnv("BOT_ID", "vcfm"),

		MediaDir:     mediaBase,
		ThumbnailDir: filepath.Join(mediaBase, "thumbnails"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api-rjvn.app/api2"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),

		JoinSettleDelay:   time.Duration(getEnvInt("JOIN_SETTLE_SECONDS", 2)) * time.Second,
		StreamSettleDelay: time.Duration(getEnvInt("STREAM_SETTLE_SECONDS", 1)) * time.Second,
		MaxJoinRetries:    getEnvInt("MAX_JOIN_RETRIES", 3),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "vcfm"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "vcfm-archive"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		OpsAddr: getEnv("OPS_ADDR", ":8090"),
	}
}
