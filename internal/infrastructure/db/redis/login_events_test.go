package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unza/counseling-identity/internal/core/domain"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := Connect(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = Connect(context.Background(), Config{Addr: addr, Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestLoginEventStream_Notify(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := Connect(ctx, Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	stream := NewLoginEventStream(client, "test:logins", 0)
	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	ev := domain.LoginEvent{
		Subject:        "2021001234@unza.zm",
		UserID:         "u-1",
		Source:         domain.SourceSIS,
		ExternalSystem: "SIS_DISTANCE",
		Provisioned:    true,
		At:             at,
	}
	require.NoError(t, stream.Notify(ctx, ev))

	entries, err := client.XRange(ctx, "test:logins", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2021001234@unza.zm", entries[0].Values["subject"])
	assert.Equal(t, "SIS", entries[0].Values["source"])

	var decoded domain.LoginEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	assert.Equal(t, ev.ExternalSystem, decoded.ExternalSystem)
	assert.True(t, decoded.Provisioned)
	assert.True(t, at.Equal(decoded.At))

	last, err := stream.LastLogin(ctx, ev.Subject)
	require.NoError(t, err)
	assert.Equal(t, at, last)
	assert.True(t, mr.TTL("test:logins:last:2021001234@unza.zm") > 0)

	never, err := stream.LastLogin(ctx, "nobody@unza.zm")
	require.NoError(t, err)
	assert.True(t, never.IsZero())
}

func TestLoginEventStream_NotifyFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = NewLoginEventStream(client, "", 10).Notify(ctx, domain.LoginEvent{Subject: "x@unza.zm", At: time.Now()})
	assert.Error(t, err)
}
