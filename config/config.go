package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wfunc/blinkduel/state"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Match      MatchConfig      `mapstructure:"match"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string   `mapstructure:"http_address"`
	RPCAddress     string   `mapstructure:"rpc_address"`
	GRPCAddress    string   `mapstructure:"grpc_address"`
	MetricsAddress string   `mapstructure:"metrics_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig selects the match store: "redis" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MatchConfig struct {
	Countdown         time.Duration `mapstructure:"countdown"`
	MaxDuration       time.Duration `mapstructure:"max_duration"`
	DrawThreshold     time.Duration `mapstructure:"draw_threshold"`
	DisconnectTimeout time.Duration `mapstructure:"disconnect_timeout"`
	RoomTTL           time.Duration `mapstructure:"room_ttl"`
	LossSettleDelay   time.Duration `mapstructure:"loss_settle_delay"`
	CodeLength        int           `mapstructure:"code_length"`
	CodeAlphabet      string        `mapstructure:"code_alphabet"`
	CodeAttempts      int           `mapstructure:"code_attempts"`
	CommitAttempts    int           `mapstructure:"commit_attempts"`
}

// Settings converts the match section to engine timing.
func (m MatchConfig) Settings() state.Settings {
	return state.Settings{
		Countdown:         m.Countdown,
		MaxDuration:       m.MaxDuration,
		DrawThreshold:     m.DrawThreshold,
		DisconnectTimeout: m.DisconnectTimeout,
		RoomTTL:           m.RoomTTL,
		LossSettleDelay:   m.LossSettleDelay,
	}
}

type SettlementConfig struct {
	PrivateKey      string `mapstructure:"private_key"`
	ContractAddress string `mapstructure:"contract_address"`
	StakeAmount     string `mapstructure:"stake_amount"`
	WinAmount       string `mapstructure:"win_amount"`
}

// Enabled reports whether both the key and the contract are set.
func (s SettlementConfig) Enabled() bool {
	return s.PrivateKey != "" && s.ContractAddress != ""
}

// AuthConfig selects how callers are identified: "session" looks bearer
// tokens up in the directory, "gateway" trusts headers from a gateway
// holding GatewayToken.
type AuthConfig struct {
	Mode           string          `mapstructure:"mode"`
	GatewayToken   string          `mapstructure:"gateway_token"`
	StaticSessions []StaticSession `mapstructure:"static_sessions"`
}

// StaticSession is a development token. It is a list entry rather than a
// map because viper lowercases map keys.
type StaticSession struct {
	Token    string `mapstructure:"token"`
	Wallet   string `mapstructure:"wallet"`
	Username string `mapstructure:"username"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Driver   string `mapstructure:"driver"` // gorm | sql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type NotifyConfig struct {
	NATSURL       string        `mapstructure:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MinikitAPIKey string        `mapstructure:"minikit_api_key"`
	MinikitAppID  string        `mapstructure:"minikit_app_id"`
	MinikitURL    string        `mapstructure:"minikit_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "127.0.0.1:8081")
	v.SetDefault("server.grpc_address", ":8082")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("store.driver", "redis")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	defaults := state.DefaultSettings()
	v.SetDefault("match.countdown", defaults.Countdown)
	v.SetDefault("match.max_duration", defaults.MaxDuration)
	v.SetDefault("match.draw_threshold", defaults.DrawThreshold)
	v.SetDefault("match.disconnect_timeout", defaults.DisconnectTimeout)
	v.SetDefault("match.room_ttl", defaults.RoomTTL)
	v.SetDefault("match.loss_settle_delay", defaults.LossSettleDelay)
	v.SetDefault("match.code_length", 6)
	v.SetDefault("match.code_alphabet", "0123456789")
	v.SetDefault("match.code_attempts", 5)
	v.SetDefault("match.commit_attempts", 5)

	v.SetDefault("settlement.private_key", "")
	v.SetDefault("settlement.contract_address", "")
	v.SetDefault("settlement.stake_amount", "1")
	v.SetDefault("settlement.win_amount", "1.9")

	v.SetDefault("auth.mode", "session")
	v.SetDefault("auth.gateway_token", "")

	v.SetDefault("database.postgres.driver", "gorm")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "blinkduel")

	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject_prefix", "pvp.outcome")
	v.SetDefault("notify.minikit_api_key", "")
	v.SetDefault("notify.minikit_app_id", "")
	v.SetDefault("notify.minikit_url", "")
	v.SetDefault("notify.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path when present. Every key can be
// overridden from the environment, e.g. MATCH_COUNTDOWN=5s.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}
