package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Database DatabaseConfig `mapstructure:"database"`
	Repo     RepoConfig     `mapstructure:"repo"`
	Upload   UploadConfig   `mapstructure:"upload"`
	AI       AIConfig       `mapstructure:"ai"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // sqlite 数据库文件路径
}

// RepoConfig 远端图床仓库配置
type RepoConfig struct {
	APIBase            string `mapstructure:"api_base"`             // 内容仓库 API 地址
	Owner              string `mapstructure:"owner"`                // 仓库所有者
	Repo               string `mapstructure:"repo"`                 // 仓库名
	Branch             string `mapstructure:"branch"`               // 分支
	Token              string `mapstructure:"token"`                // 访问令牌
	MetadataOwner      string `mapstructure:"metadata_owner"`       // 元数据仓库所有者（默认同图床仓库）
	MetadataRepo       string `mapstructure:"metadata_repo"`        // 元数据仓库名
	MetadataBranch     string `mapstructure:"metadata_branch"`      // 元数据仓库分支
	MetadataPendingDir string `mapstructure:"metadata_pending_dir"` // 待处理元数据目录
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`      // 请求超时（秒）
}

// UploadConfig 批量上传与去重配置
type UploadConfig struct {
	TempDir            string   `mapstructure:"temp_dir"`             // 临时文件目录
	AllowedExtensions  []string `mapstructure:"allowed_extensions"`   // 允许的文件扩展名
	MaxFileSizeMB      int      `mapstructure:"max_file_size_mb"`     // 单文件大小上限（MB）
	CompressOverMB     int      `mapstructure:"compress_over_mb"`     // 超过该大小自动压缩（MB）
	UploadDelayMs      int      `mapstructure:"upload_delay_ms"`      // 相邻上传之间的间隔（毫秒）
	BatchWarnThreshold int      `mapstructure:"batch_warn_threshold"` // 批量上传警告阈值
	HashCacheCapacity  int      `mapstructure:"hash_cache_capacity"`  // 哈希缓存容量上限
	HashCacheTTLDays   int      `mapstructure:"hash_cache_ttl_days"`  // 哈希缓存过期天数
	HistoryKeepDays    int      `mapstructure:"history_keep_days"`    // 上传历史保留天数
}

// AIProviderConfig 单个 AI Provider 的凭证与模型配置
type AIProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"` // API 地址
	APIKey   string `mapstructure:"api_key"`  // 凭证
	Model    string `mapstructure:"model"`    // 模型 ID
}

// AIConfig AI 智能分类配置
type AIConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	DefaultProvider string           `mapstructure:"default_provider"` // doubao 或 cloudflare
	Concurrency     int              `mapstructure:"concurrency"`      // 分析并发数
	Doubao          AIProviderConfig `mapstructure:"doubao"`
	Cloudflare      AIProviderConfig `mapstructure:"cloudflare"`
}

// WatcherConfig 图片投递目录监控配置
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // 监控目录，新图片会自动加入批次
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "pic-fusion")

	// 数据库默认配置
	viper.SetDefault("database.path", "data/pic-fusion.db")

	// 远端仓库默认配置
	viper.SetDefault("repo.api_base", "https://api.github.com")
	viper.SetDefault("repo.branch", "main")
	viper.SetDefault("repo.metadata_branch", "main")
	viper.SetDefault("repo.metadata_pending_dir", "metadata-pending")
	viper.SetDefault("repo.timeout_seconds", 60)

	// 上传默认配置
	viper.SetDefault("upload.temp_dir", "data/tmp")
	viper.SetDefault("upload.allowed_extensions", []string{"jpg", "jpeg", "png", "webp"})
	viper.SetDefault("upload.max_file_size_mb", 25)
	viper.SetDefault("upload.compress_over_mb", 5)
	viper.SetDefault("upload.upload_delay_ms", 500) // 上传间隔 500ms，避免触发限流
	viper.SetDefault("upload.batch_warn_threshold", 50)
	viper.SetDefault("upload.hash_cache_capacity", 500)
	viper.SetDefault("upload.hash_cache_ttl_days", 30)
	viper.SetDefault("upload.history_keep_days", 90)

	// AI 默认配置
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.default_provider", "doubao")
	viper.SetDefault("ai.concurrency", 3)
	viper.SetDefault("ai.doubao.endpoint", "https://ark.cn-beijing.volces.com/api/v3")
	viper.SetDefault("ai.doubao.model", "doubao-seed-1-6-vision-250815")
	viper.SetDefault("ai.cloudflare.model", "@cf/meta/llama-3.2-11b-vision-instruct")

	// 目录监控默认配置
	viper.SetDefault("watcher.enabled", false)
	viper.SetDefault("watcher.dir", "data/inbox")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Repo.Owner == "" || config.Repo.Repo == "" {
		return fmt.Errorf("远端仓库 owner/repo 未设置")
	}
	if config.Upload.HashCacheCapacity <= 0 {
		return fmt.Errorf("哈希缓存容量必须大于 0")
	}
	if config.Watcher.Enabled && config.Watcher.Dir == "" {
		return fmt.Errorf("目录监控已启用但未设置监控目录")
	}
	return nil
}

// HashCacheTTL 哈希缓存过期时长
func (c *UploadConfig) HashCacheTTL() time.Duration {
	return time.Duration(c.HashCacheTTLDays) * 24 * time.Hour
}

// UploadDelay 相邻上传之间的间隔
func (c *UploadConfig) UploadDelay() time.Duration {
	return time.Duration(c.UploadDelayMs) * time.Millisecond
}

// MaxFileSize 单文件大小上限（字节）
func (c *UploadConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// MetadataTarget 元数据仓库定位，未单独配置时退回图床仓库
func (c *RepoConfig) MetadataTarget() (owner, repo, branch string) {
	owner, repo, branch = c.MetadataOwner, c.MetadataRepo, c.MetadataBranch
	if owner == "" {
		owner = c.Owner
	}
	if repo == "" {
		repo = c.Repo
	}
	if branch == "" {
		branch = c.Branch
	}
	return
}
