package lighthouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror copies device records into Redis for dashboards that live
// outside the relay. The in-memory registry stays authoritative.
type RedisMirror struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client, timeout: 2 * time.Second}
}

func deviceKey(deviceID string) string {
	return "helprelay:device:" + deviceID
}

const allDevicesKey = "helprelay:devices"

func (m *RedisMirror) PutDevice(rec DeviceRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := m.client.Pipeline()
	pipe.Set(ctx, deviceKey(rec.DeviceID), data, 0)
	pipe.SAdd(ctx, allDevicesKey, rec.DeviceID)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) deviceIDs(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, allDevicesKey).Result()
}

// FlushAll removes every mirrored record. Called on startup so the mirror
// never shows devices from a previous run.
func (m *RedisMirror) FlushAll(ctx context.Context) error {
	ids, err := m.deviceIDs(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, deviceKey(id))
	}
	keys = append(keys, allDevicesKey)
	return m.client.Del(ctx, keys...).Err()
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

var _ Mirror = (*RedisMirror)(nil)
