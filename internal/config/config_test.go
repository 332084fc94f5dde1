package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WaitingTimeout != 300*time.Second {
		t.Fatalf("WaitingTimeout = %v, want 300s", cfg.WaitingTimeout)
	}
	if cfg.ConversationTimeout != 600*time.Second {
		t.Fatalf("ConversationTimeout = %v, want 600s", cfg.ConversationTimeout)
	}
	if cfg.SweepInterval != 0 {
		t.Fatalf("SweepInterval = %v, want disabled", cfg.SweepInterval)
	}
	if cfg.Keywords.RequestHuman != "转人工" || cfg.Keywords.List != "查看会话" {
		t.Fatalf("Keywords = %+v, want defaults", cfg.Keywords)
	}
	if cfg.AMQPExchange != "handoff.outbound" {
		t.Fatalf("AMQPExchange = %q", cfg.AMQPExchange)
	}
}

func TestLoadReadsOperatorsAndSeconds(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPERATOR_IDS", " 100, 200 ,,")
	t.Setenv("WAITING_TIMEOUT", "120")
	t.Setenv("CONVERSATION_TIMEOUT", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := []string{"100", "200"}; !reflect.DeepEqual(cfg.OperatorIDs, want) {
		t.Fatalf("OperatorIDs = %v, want %v", cfg.OperatorIDs, want)
	}
	if cfg.WaitingTimeout != 2*time.Minute {
		t.Fatalf("WaitingTimeout = %v, want 2m", cfg.WaitingTimeout)
	}
	if cfg.ConversationTimeout != 15*time.Minute {
		t.Fatalf("ConversationTimeout = %v, want 15m", cfg.ConversationTimeout)
	}
}

func TestLoadRejectsTinyTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("WAITING_TIMEOUT", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "handoff.yaml")
	doc := []byte(`operators: ["111"]
admins: ["222", "bot"]
waiting_timeout: "90"
conversation_timeout: 5m
keywords:
  request_human: "human please"
  accept: "take"
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HANDOFF_CONFIG", path)
	t.Setenv("CONVERSATION_TIMEOUT", "400")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.OperatorIDs, []string{"111"}) {
		t.Fatalf("OperatorIDs = %v", cfg.OperatorIDs)
	}
	if !reflect.DeepEqual(cfg.AdminIDs, []string{"222", "bot"}) {
		t.Fatalf("AdminIDs = %v", cfg.AdminIDs)
	}
	if cfg.WaitingTimeout != 90*time.Second {
		t.Fatalf("WaitingTimeout = %v, want 90s from file", cfg.WaitingTimeout)
	}
	if cfg.ConversationTimeout != 400*time.Second {
		t.Fatalf("ConversationTimeout = %v, want env override", cfg.ConversationTimeout)
	}
	if cfg.Keywords.RequestHuman != "human please" || cfg.Keywords.Accept != "take" || cfg.Keywords.End != "结束对话" {
		t.Fatalf("Keywords = %+v", cfg.Keywords)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HANDOFF_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadFromExplicitPath(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "ops.yaml")
	if err := os.WriteFile(path, []byte("operators: [\"42\"]\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.OperatorIDs, []string{"42"}) {
		t.Fatalf("OperatorIDs = %v", cfg.OperatorIDs)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"GATEWAY_TOKEN",
		"HANDOFF_CONFIG",
		"OPERATOR_IDS",
		"ADMIN_IDS",
		"WAITING_TIMEOUT",
		"CONVERSATION_TIMEOUT",
		"SWEEP_INTERVAL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"AMQP_URL",
		"AMQP_EXCHANGE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
