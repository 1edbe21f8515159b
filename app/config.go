package app

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Bridge transport modes.
const (
	ModeSim    = "SIM"
	ModeSerial = "SERIAL"
)

// Serial framings.
const (
	FramingLine = "line"
	FramingCBOR = "cbor"
)

// Config 从环境变量读取，两个进程共用。
type Config struct {
	HTTPPort  string
	WebOrigin string

	MQTTHost string
	MQTTPort int

	RedisAddr  string
	RedisPwd   string
	SessionTTL time.Duration

	BridgeMode    string // SIM | SERIAL
	SerialDevice  string
	SerialBaud    int
	SerialFraming string // line | cbor

	AckTimeout  time.Duration
	DoneTimeout time.Duration
	DedupTTL    time.Duration

	SimFailRate float64
	SimMinCycle time.Duration
	SimMaxCycle time.Duration
	SimAckDelay time.Duration
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}

	return Config{
		HTTPPort:  getenv("PORT", "3001"),
		WebOrigin: getenv("WEB_ORIGIN", "http://localhost:5173"),

		MQTTHost: getenv("MQTT_HOST", "localhost"),
		MQTTPort: getint("MQTT_PORT", 1883),

		RedisAddr:  getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:   os.Getenv("REDIS_PASSWORD"),
		SessionTTL: time.Duration(getint("SESSION_TTL_SECONDS", 600)) * time.Second,

		BridgeMode:    getenv("BRIDGE_MODE", ModeSim),
		SerialDevice:  getenv("SERIAL_PORT", "/dev/ttyUSB0"),
		SerialBaud:    getint("SERIAL_BAUD", 115200),
		SerialFraming: getenv("SERIAL_FRAMING", FramingLine),

		AckTimeout:  time.Duration(getint("ACK_TIMEOUT_MS", 500)) * time.Millisecond,
		DoneTimeout: time.Duration(getint("DONE_TIMEOUT_MS", 30000)) * time.Millisecond,
		DedupTTL:    time.Duration(getint("DEDUP_TTL_S", 120)) * time.Second,

		SimFailRate: getfloat("SIM_FAIL_RATE", 0.08),
		SimMinCycle: time.Duration(getfloat("SIM_MIN_TIME_S", 0.4) * float64(time.Second)),
		SimMaxCycle: time.Duration(getfloat("SIM_MAX_TIME_S", 1.5) * float64(time.Second)),
		SimAckDelay: time.Duration(getfloat("SIM_ACK_DELAY_S", 0.05) * float64(time.Second)),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
