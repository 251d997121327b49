package config

import (
	"time"

	"github.com/spf13/viper"
)

/*
SetDefaults mirrors the embedded config file so a missing or partial file
still loads.
*/
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "A2A Payments Agent")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.asyncExecution", false)
	v.SetDefault("server.handlerTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.heartbeat", 15*time.Second)
	v.SetDefault("server.streaming.ticks", 10)
	v.SetDefault("server.streaming.interval", time.Second)
	v.SetDefault("server.pushDelay", 5*time.Second)

	v.SetDefault("payments.enabled", false)
	v.SetDefault("payments.agentId", "a2a-payments-agent")
	v.SetDefault("payments.planId", "a2a-payments-plan")
	v.SetDefault("payments.initialCredits", 100)
	v.SetDefault("payments.tokenTtl", 24*time.Hour)
	v.SetDefault("payments.rateLimit.requests", 100)
	v.SetDefault("payments.rateLimit.interval", time.Minute)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "a2a-tasks")

	v.SetDefault("push.timeout", 10*time.Second)
	v.SetDefault("push.maxAttempts", 3)
	v.SetDefault("push.initialDelay", time.Second)

	v.SetDefault("webhook.port", 8001)
	v.SetDefault("webhook.agentUrl", "http://localhost:8000/a2a")

	v.SetDefault("log.level", "info")
}
