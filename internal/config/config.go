package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Config struct {
	Env      string `yaml:"env" env-default:"local"`
	Telegram struct {
		ApiKey  string `yaml:"api_key" env-default:""`
		BotName string `yaml:"bot_name" env-default:"FunnelgramBot"`
		BotID   string `yaml:"bot_id" env-default:"default"`
		Enabled bool   `yaml:"enabled" env-default:"false"`
	} `yaml:"telegram"`
	Engine struct {
		RestartCommand   string `yaml:"restart_command" env-default:"/start"`
		CancelCommand    string `yaml:"cancel_command" env-default:"/cancel"`
		FallbackText     string `yaml:"fallback_text" env-default:"Sorry, I did not understand that. Send /start to begin."`
		MaxStepsPerEvent int    `yaml:"max_steps_per_event" env-default:"25"`
		DedupeWindow     int    `yaml:"dedupe_window" env-default:"64"`
		CallTimeoutSec   int    `yaml:"call_timeout_sec" env-default:"10"`
	} `yaml:"engine"`
	Broadcast struct {
		Workers       int     `yaml:"workers" env-default:"4"`
		RatePerSecond float64 `yaml:"rate_per_second" env-default:"25"`
		RetryLimit    int     `yaml:"retry_limit" env-default:"3"`
		FailurePause  int     `yaml:"failure_pause_threshold" env-default:"20"`
		SchedulerTick int     `yaml:"scheduler_tick_sec" env-default:"30"`
		PersistEvery  int     `yaml:"persist_every" env-default:"25"`
	} `yaml:"broadcast"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env-default:"9100"`
		ApiKey string `yaml:"key" env-default:""`
	} `yaml:"listen"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
