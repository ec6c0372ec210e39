package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizQuestionsKey returns the cache key for a quiz's decoded question list
func (r *CacheKeyStruct) QuizQuestionsKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:questions", quizID)
}

// RoomStatsGenerationKey holds the counter bumped whenever a room's statistics change
func (r *CacheKeyStruct) RoomStatsGenerationKey(roomID string) string {
	return fmt.Sprintf("room:%s:stats:gen", roomID)
}

// RoomSummaryKey returns the cache key for a room's computed summary at a generation
func (r *CacheKeyStruct) RoomSummaryKey(roomID string, gen int64) string {
	return fmt.Sprintf("room:%s:stats:summary:%d", roomID, gen)
}

// RoomBreakdownKey returns the cache key for a room's per-question breakdown at a generation
func (r *CacheKeyStruct) RoomBreakdownKey(roomID string, gen int64) string {
	return fmt.Sprintf("room:%s:stats:questions:%d", roomID, gen)
}

// RoomMonitorChannel returns the Redis PubSub channel name for a room's live events
func (r *CacheKeyStruct) RoomMonitorChannel(roomCode string) string {
	return fmt.Sprintf("room:%s:monitor", strings.ToUpper(roomCode))
}

// WatchdogDeadlinesKey is the sorted set of armed room deadlines (score = unix milliseconds)
func (r *CacheKeyStruct) WatchdogDeadlinesKey() string {
	return "watchdog:deadlines"
}

var CacheKey = NewCacheKeyStruct()
