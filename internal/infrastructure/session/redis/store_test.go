package redis

import (
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	store := New(rdb, 0)
	assert.Equal(t, time.Hour, store.ttl)
	assert.Equal(t, "support:session:abc", store.key("abc"))
}

func TestMissingKeyDoesNotCountAsFailure(t *testing.T) {
	class := classifyRedisError(goredis.Nil)
	assert.False(t, class.Retryable)
	assert.False(t, class.RecordFailure)

	class = classifyRedisError(errors.New("ERR wrong type"))
	assert.True(t, class.RecordFailure)
}

func TestNewFromURLRejectsBadURL(t *testing.T) {
	_, err := NewFromURL("http://not-redis", time.Minute)
	assert.Error(t, err)
}
