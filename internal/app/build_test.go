package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ent0n29/handoff/internal/config"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/routing"
)

func testConfig() config.Config {
	return config.Config{
		MetricsNamespace:    fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		LogLevel:            "error",
		LogFormat:           "text",
		OperatorIDs:         []string{"900"},
		WaitingTimeout:      time.Minute,
		ConversationTimeout: time.Minute,
		ShutdownTimeout:     time.Second,
		Keywords:            routing.DefaultKeywords(),
	}
}

func TestBuildDefaultsToGatewayAndMemoryJournal(t *testing.T) {
	res, err := Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Transport != TransportGateway {
		t.Fatalf("Transport = %q, want %q", res.Transport, TransportGateway)
	}
	if res.API == nil || res.Router == nil || res.Hub == nil {
		t.Fatalf("missing components: %+v", res)
	}

	// No adapter is attached, so the request is queued but its reply fails quietly.
	out := res.Router.HandleEvent(context.Background(), platform.Event{
		SenderID: "1001",
		Private:  true,
		Message:  platform.TextMessage("转人工"),
	})
	if !out.Handled {
		t.Fatalf("request not handled")
	}
	if res.Sessions.Len() != 1 {
		t.Fatalf("Sessions.Len() = %d, want 1", res.Sessions.Len())
	}
	entries, err := res.Journal.Recent(context.Background(), "1001", 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("journal entries = %+v, err = %v", entries, err)
	}
}

func TestBuildRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "loud"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected logger error")
	}
}
