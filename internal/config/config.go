// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AutoQuestionIntervals are the interval choices exposed to instructors.
var AutoQuestionIntervals = []int{5, 10, 15, 20, 30}

type Config struct {
	HTTPAddr string

	// Transcription relay
	RelayURL             string
	RelayAPIKey          string
	SampleRate           int
	ChunkInterval        time.Duration // audio chunk cadence
	MinChunkBytes        int           // chunks below this are discarded as silence
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	MaxConnectionAge     time.Duration // proactive reconnect threshold

	// Voice commands
	TriggerPhrases []string
	VoiceDebounce  time.Duration

	// Auto questions
	AutoQuestionEnabled  bool
	AutoQuestionInterval time.Duration
	MinIntervalChars     int
	MinQualityScore      float64
	QuestionCooldown     time.Duration
	DailyQuestionLimit   int

	// Question generation service
	GeneratorURL     string
	GeneratorTimeout time.Duration

	// Question delivery (Kafka)
	KafkaEnabled  bool
	KafkaBrokers  []string
	QuestionTopic string

	// Lecture storage (Supabase/PostgREST)
	SupabaseURL        string
	SupabaseServiceKey string
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),

		RelayURL:             getEnv("RELAY_URL", "wss://localhost:9090/v1/listen"),
		RelayAPIKey:          getEnv("RELAY_API_KEY", ""),
		SampleRate:           getEnvInt("SAMPLE_RATE", 16000),
		ChunkInterval:        getEnvDuration("CHUNK_INTERVAL", 250*time.Millisecond),
		MinChunkBytes:        getEnvInt("MIN_CHUNK_BYTES", 1024),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 3),
		ReconnectBaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", 2*time.Second),
		MaxConnectionAge:     getEnvDuration("MAX_CONNECTION_AGE", 55*time.Second),

		TriggerPhrases: getEnvList("TRIGGER_PHRASES", nil),
		VoiceDebounce:  getEnvDuration("VOICE_DEBOUNCE", 3*time.Second),

		AutoQuestionEnabled:  getEnvBool("AUTO_QUESTION_ENABLED", true),
		AutoQuestionInterval: time.Duration(clampInterval(getEnvInt("AUTO_QUESTION_INTERVAL_MIN", 10))) * time.Minute,
		MinIntervalChars:     getEnvInt("MIN_INTERVAL_CHARS", 100),
		MinQualityScore:      getEnvFloat("MIN_QUALITY_SCORE", 0.35),
		QuestionCooldown:     getEnvDuration("QUESTION_COOLDOWN", 60*time.Second),
		DailyQuestionLimit:   getEnvInt("DAILY_QUESTION_LIMIT", 50),

		GeneratorURL:     getEnv("GENERATOR_URL", "http://localhost:8100"),
		GeneratorTimeout: getEnvDuration("GENERATOR_TIMEOUT", 30*time.Second),

		KafkaEnabled:  getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:  getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		QuestionTopic: getEnv("QUESTION_TOPIC", "lecture.questions"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
	}
}

// clampInterval snaps an instructor-configured interval to the nearest
// allowed choice.
func clampInterval(minutes int) int {
	best := AutoQuestionIntervals[0]
	for _, v := range AutoQuestionIntervals {
		if abs(minutes-v) < abs(minutes-best) {
			best = v
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
