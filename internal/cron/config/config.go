package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Stalled batch watchdog, every five minutes
	CronScheduleStalledBatches string `env:"CRON_SCHEDULE_STALLED_BATCHES" envDefault:"0 */5 * * * *"`
	// Circuit breaker metrics report, every minute
	CronScheduleBreakerReport string `env:"CRON_SCHEDULE_BREAKER_REPORT" envDefault:"30 * * * * *"`
}
