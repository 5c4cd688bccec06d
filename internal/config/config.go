package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var defaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
	"wss://nos.social",
}

type Config struct {
	// Telegram
	BotToken      string
	AlertChatID   int64
	BoardInterval time.Duration
	BoardTop      int

	// Nostr
	Relays      []string
	BoostPubkey string
	ZapActivity string
	NostrSecret string

	// Historical feed
	BoostAPIURL string
	PageItems   int
	MaxPages    int

	// Podcast Index
	PodcastIndexURL    string
	PodcastIndexKey    string
	PodcastIndexSecret string

	// Tracker
	LoadBoosts       bool
	LoadZaps         bool
	DedupCapacity    int
	RemoteCacheSize  int
	RetryBase        time.Duration
	MaxRetryAttempts int

	// Filters, applied through SetFilter when set
	FilterBefore          string
	FilterAfter           string
	FilterPodcasts        string
	FilterExcludePodcasts string
	FilterEventGUIDs      string
	FilterEpisodeGUIDs    string

	// Boost API server
	APIPort      int
	HelipadToken string
	DBPath       string
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:      getEnv("BOT_TOKEN", ""),
		AlertChatID:   getEnvInt64("ALERT_CHAT_ID", 0),
		BoardInterval: time.Duration(getEnvInt("BOARD_INTERVAL_MIN", 60)) * time.Minute,
		BoardTop:      getEnvInt("BOARD_TOP", 10),

		// Nostr
		Relays:      getEnvList("NOSTR_RELAYS", defaultRelays),
		BoostPubkey: getEnv("NOSTR_BOOST_PUBKEY", ""),
		ZapActivity: getEnv("NOSTR_ZAP_EVENT", ""),
		NostrSecret: getEnv("NOSTR_NSEC", ""),

		// Historical feed
		BoostAPIURL: strings.TrimSuffix(getEnv("BOOST_API_URL", "https://boostboard.vercel.app"), "/"),
		PageItems:   getEnvInt("BOOST_API_PAGE_ITEMS", 1000),
		MaxPages:    getEnvInt("BOOST_API_MAX_PAGES", 100),

		// Podcast Index
		PodcastIndexURL:    strings.TrimSuffix(getEnv("PODCASTINDEX_URL", "https://api.podcastindex.org/api/1.0"), "/"),
		PodcastIndexKey:    getEnv("PODCASTINDEX_KEY", ""),
		PodcastIndexSecret: getEnv("PODCASTINDEX_SECRET", ""),

		// Tracker
		LoadBoosts:       getEnvBool("LOAD_BOOSTS", true),
		LoadZaps:         getEnvBool("LOAD_ZAPS", true),
		DedupCapacity:    getEnvInt("DEDUP_CAPACITY", 10000),
		RemoteCacheSize:  getEnvInt("REMOTE_CACHE_SIZE", 10000),
		RetryBase:        time.Duration(getEnvInt("RETRY_BASE_MS", 1000)) * time.Millisecond,
		MaxRetryAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 8),

		// Filters
		FilterBefore:          getEnv("FILTER_BEFORE", ""),
		FilterAfter:           getEnv("FILTER_AFTER", ""),
		FilterPodcasts:        getEnv("FILTER_PODCASTS", ""),
		FilterExcludePodcasts: getEnv("FILTER_EXCLUDE_PODCASTS", ""),
		FilterEventGUIDs:      getEnv("FILTER_EVENT_GUIDS", ""),
		FilterEpisodeGUIDs:    getEnv("FILTER_EPISODE_GUIDS", ""),

		// Boost API server
		APIPort:      getEnvInt("API_PORT", 8080),
		HelipadToken: getEnv("HELIPAD_TOKEN", ""),
		DBPath:       getEnv("DB_PATH", "./boosts.db"),
	}

	return cfg
}

// Filters returns the configured filters keyed by tracker filter name,
// leaving out the unset ones
func (c *Config) Filters() map[string]string {
	all := map[string]string{
		"before":          c.FilterBefore,
		"after":           c.FilterAfter,
		"podcasts":        c.FilterPodcasts,
		"excludePodcasts": c.FilterExcludePodcasts,
		"eventGuids":      c.FilterEventGUIDs,
		"episodeGuids":    c.FilterEpisodeGUIDs,
	}

	set := make(map[string]string)
	for name, val := range all {
		if val != "" {
			set[name] = val
		}
	}
	return set
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	var list []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultVal
	}
	return list
}
