package channels_test

import (
	"testing"

	"github.com/basket/scriptbot/internal/channels"
)

// Compile-time interface check: TelegramChannel must implement Channel.
var _ channels.Channel = (*channels.TelegramChannel)(nil)

func TestTelegramChannel_Name(t *testing.T) {
	// Name() does not touch any dependencies, so nil ones are fine here.
	ch := channels.NewTelegramChannel("fake-token", nil, channels.TelegramOptions{})
	if got := ch.Name(); got != "telegram" {
		t.Fatalf("TelegramChannel.Name() = %q, want %q", got, "telegram")
	}
}

func TestTelegramChannel_NotifyEmpty(t *testing.T) {
	ch := channels.NewTelegramChannel("fake-token", nil, channels.TelegramOptions{Notify: []int64{}})
	if ch == nil {
		t.Fatal("expected non-nil TelegramChannel with no notify chats")
	}
}
