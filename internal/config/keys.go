package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "QAREVIEW_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "QAREVIEW_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.backend", typ: kString, env: "QAREVIEW_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QAREVIEW_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.profiles_dir", typ: kString, env: "QAREVIEW_STORAGE_PROFILES_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ProfilesDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ProfilesPath() },
	},
	{
		key: "dataset.dir", typ: kString, env: "QAREVIEW_DATASET_DIR",
		apply:   func(cfg *Config, v any) { cfg.Dataset.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Dataset.Dir },
	},
	{
		key: "dataset.mode", typ: kString, env: "QAREVIEW_DATASET_MODE",
		apply:   func(cfg *Config, v any) { cfg.Dataset.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Dataset.Mode },
	},
	{
		key: "dataset.subset", typ: kInt, env: "QAREVIEW_DATASET_SUBSET",
		apply:   func(cfg *Config, v any) { cfg.Dataset.Subset = v.(int) },
		extract: func(cfg Config) any { return cfg.Dataset.Subset },
	},
	{
		key: "review.shuffle", typ: kBool, env: "QAREVIEW_REVIEW_SHUFFLE",
		apply:   func(cfg *Config, v any) { cfg.Review.Shuffle = v.(bool) },
		extract: func(cfg Config) any { return cfg.Review.Shuffle },
	},
	{
		key: "review.legacy_question_keys", typ: kBool, env: "QAREVIEW_REVIEW_LEGACY_QUESTION_KEYS",
		apply:   func(cfg *Config, v any) { cfg.Review.LegacyQuestionKeys = v.(bool) },
		extract: func(cfg Config) any { return cfg.Review.LegacyQuestionKeys },
	},
	{
		key: "review.dataset_title", typ: kString, env: "QAREVIEW_REVIEW_DATASET_TITLE",
		apply:   func(cfg *Config, v any) { cfg.Review.DatasetTitle = v.(string) },
		extract: func(cfg Config) any { return cfg.Review.DatasetTitle },
	},
	{
		key: "log.level", typ: kString, env: "QAREVIEW_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "QAREVIEW_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "publish.enabled", typ: kBool, env: "QAREVIEW_PUBLISH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Publish.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Publish.Enabled },
	},
	{
		key: "publish.endpoint", typ: kString, env: "QAREVIEW_PUBLISH_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Publish.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Endpoint },
	},
	{
		key: "publish.bucket", typ: kString, env: "QAREVIEW_PUBLISH_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Publish.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Bucket },
	},
	{
		key: "publish.region", typ: kString, env: "QAREVIEW_PUBLISH_REGION",
		apply:   func(cfg *Config, v any) { cfg.Publish.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Region },
	},
	{
		key: "publish.prefix", typ: kString, env: "QAREVIEW_PUBLISH_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Publish.Prefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Prefix },
	},
	{
		key: "publish.access_key", typ: kString, env: "QAREVIEW_PUBLISH_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Publish.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.AccessKey },
	},
	{
		key: "publish.secret_key", typ: kString, env: "QAREVIEW_PUBLISH_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Publish.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.SecretKey },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					slog.Warn("could not parse bool from config key, using default", "key", s.key, "value", v, "error", err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				slog.Warn("could not parse bool from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
