package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("SUBMIT_GRACE_SECONDS", "12")
	t.Setenv("MAILBOX_TIMEOUT_MS", "250")
	t.Setenv("PASS_THRESHOLD", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, 12*time.Second, cfg.SubmitGrace)
	assert.Equal(t, 250*time.Millisecond, cfg.MailboxTimeout)
	assert.Equal(t, 60, cfg.PassThreshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeysNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, "room:ABC123:monitor", CacheKey.RoomMonitorChannel("abc123"))
	assert.Equal(t, "room:r1:stats:summary:3", CacheKey.RoomSummaryKey("r1", 3))
	assert.Equal(t, "room:r1:stats:gen", CacheKey.RoomStatsGenerationKey("r1"))
}
