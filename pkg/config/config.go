/*
Package config turns the viper settings into a typed, validated Config.
*/
package config

import (
	"fmt"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Payments Payments
	Archive  Archive
	Push     Push
	Webhook  Webhook
	Log      Log
}

type Server struct {
	Name            string
	Host            string
	Port            int
	PublicURL       string
	AsyncExecution  bool
	HandlerTimeout  time.Duration
	ShutdownTimeout time.Duration
	Heartbeat       time.Duration
	StreamTicks     int
	StreamInterval  time.Duration
	PushDelay       time.Duration
}

/*
Addr is the listen address of the agent host.
*/
func (server Server) Addr() string {
	return fmt.Sprintf("%s:%d", server.Host, server.Port)
}

/*
URL is the advertised JSON-RPC endpoint, defaulting to the listen address.
*/
func (server Server) URL() string {
	if server.PublicURL != "" {
		return server.PublicURL
	}

	host := server.Host

	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}

	return fmt.Sprintf("http://%s:%d/a2a", host, server.Port)
}

type Payments struct {
	Enabled        bool
	APIKey         string
	AgentID        string
	PlanID         string
	InitialCredits int
	TokenTTL       time.Duration
	RateLimit      int
	RateInterval   time.Duration
}

type Archive struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Push struct {
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
}

type Webhook struct {
	Port     int
	AgentURL string
}

type Log struct {
	Level string
}

/*
Load reads every known key from v and validates the result.
*/
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Name:            v.GetString("server.name"),
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			PublicURL:       v.GetString("server.publicUrl"),
			AsyncExecution:  v.GetBool("server.asyncExecution"),
			HandlerTimeout:  v.GetDuration("server.handlerTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			Heartbeat:       v.GetDuration("server.heartbeat"),
			StreamTicks:     v.GetInt("server.streaming.ticks"),
			StreamInterval:  v.GetDuration("server.streaming.interval"),
			PushDelay:       v.GetDuration("server.pushDelay"),
		},
		Payments: Payments{
			Enabled:        v.GetBool("payments.enabled"),
			APIKey:         v.GetString("payments.apiKey"),
			AgentID:        v.GetString("payments.agentId"),
			PlanID:         v.GetString("payments.planId"),
			InitialCredits: v.GetInt("payments.initialCredits"),
			TokenTTL:       v.GetDuration("payments.tokenTtl"),
			RateLimit:      v.GetInt("payments.rateLimit.requests"),
			RateInterval:   v.GetDuration("payments.rateLimit.interval"),
		},
		Archive: Archive{
			Enabled:   v.GetBool("archive.enabled"),
			Endpoint:  v.GetString("archive.endpoint"),
			AccessKey: v.GetString("archive.accessKey"),
			SecretKey: v.GetString("archive.secretKey"),
			Bucket:    v.GetString("archive.bucket"),
			UseSSL:    v.GetBool("archive.useSsl"),
		},
		Push: Push{
			Timeout:      v.GetDuration("push.timeout"),
			MaxAttempts:  v.GetInt("push.maxAttempts"),
			InitialDelay: v.GetDuration("push.initialDelay"),
		},
		Webhook: Webhook{
			Port:     v.GetInt("webhook.port"),
			AgentURL: v.GetString("webhook.agentUrl"),
		},
		Log: Log{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	val := valgo.
		Is(valgo.String(cfg.Server.Name, "server.name").Not().Blank()).
		Is(valgo.Int(cfg.Server.Port, "server.port").Between(1, 65535)).
		Is(valgo.Int64(int64(cfg.Server.HandlerTimeout), "server.handlerTimeout").GreaterThan(0)).
		Is(valgo.Int64(int64(cfg.Server.ShutdownTimeout), "server.shutdownTimeout").GreaterThan(0)).
		Is(valgo.Int64(int64(cfg.Server.Heartbeat), "server.heartbeat").GreaterThan(0)).
		Is(valgo.Int(cfg.Server.StreamTicks, "server.streaming.ticks").GreaterThan(0)).
		Is(valgo.Int64(int64(cfg.Server.StreamInterval), "server.streaming.interval").GreaterOrEqualTo(0)).
		Is(valgo.Int64(int64(cfg.Server.PushDelay), "server.pushDelay").GreaterOrEqualTo(0)).
		Is(valgo.Int(cfg.Push.MaxAttempts, "push.maxAttempts").GreaterThan(0)).
		Is(valgo.Int64(int64(cfg.Push.Timeout), "push.timeout").GreaterThan(0)).
		Is(valgo.Int(cfg.Webhook.Port, "webhook.port").Between(1, 65535))

	if cfg.Payments.Enabled {
		val.
			Is(valgo.String(cfg.Payments.AgentID, "payments.agentId").Not().Blank()).
			Is(valgo.String(cfg.Payments.PlanID, "payments.planId").Not().Blank()).
			Is(valgo.Int(cfg.Payments.InitialCredits, "payments.initialCredits").GreaterOrEqualTo(0))
	}

	if cfg.Archive.Enabled {
		val.
			Is(valgo.String(cfg.Archive.Endpoint, "archive.endpoint").Not().Blank()).
			Is(valgo.String(cfg.Archive.Bucket, "archive.bucket").Not().Blank())
	}

	if !val.Valid() {
		return fmt.Errorf("invalid configuration: %w", val.Error())
	}

	return nil
}
