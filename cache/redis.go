package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	imap "github.com/pelikan-mail/imapcore"
)

// RedisCache is a shared Cache backend for deployments that run several
// sync engines against the same account (e.g. a notification daemon and an
// interactive client) and want cache writes from one to show up in the
// other. It also publishes a change notification on SetMailboxSyncState so
// a peer can invalidate its own in-process view without polling.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache wraps an existing redis client. keyPrefix namespaces all
// keys (e.g. by account) so one Redis instance can serve several accounts.
func NewRedisCache(rdb *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: keyPrefix}
}

func (c *RedisCache) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// ChangeChannel is the pub/sub channel name a peer can subscribe to for
// SyncState invalidation notices, keyed per mailbox.
func (c *RedisCache) ChangeChannel(mailbox string) string {
	return c.key("changes", mailbox)
}

func (c *RedisCache) ChildMailboxes(ctx context.Context, mailbox string) ([]MailboxMetadata, error) {
	data, err := c.rdb.Get(ctx, c.key("children", mailbox)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []MailboxMetadata
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RedisCache) ChildMailboxesFresh(ctx context.Context, mailbox string) bool {
	n, err := c.rdb.Exists(ctx, c.key("children", mailbox)).Result()
	return err == nil && n > 0
}

func (c *RedisCache) SetChildMailboxes(ctx context.Context, mailbox string, data []MailboxMetadata) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key("children", mailbox), b, 0).Err()
}

func (c *RedisCache) ForgetChildMailboxes(ctx context.Context, mailbox string) error {
	return c.rdb.Del(ctx, c.key("children", mailbox)).Err()
}

func (c *RedisCache) MailboxSyncState(ctx context.Context, mailbox string) (*imap.SyncState, error) {
	data, err := c.rdb.Get(ctx, c.key("syncstate", mailbox)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSyncState(data)
}

// SetMailboxSyncState writes the SyncState and UID map via a MULTI/EXEC
// transaction pipeline so the pair lands atomically from any reader's
// perspective, then publishes an invalidation notice.
func (c *RedisCache) SetMailboxSyncState(ctx context.Context, mailbox string, state *imap.SyncState, seqToUID []imap.UID) error {
	uidMap, err := json.Marshal(seqToUID)
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key("syncstate", mailbox), encodeSyncState(state), 0)
		pipe.Set(ctx, c.key("uidmap", mailbox), uidMap, 0)
		pipe.Publish(ctx, c.ChangeChannel(mailbox), "syncstate")
		return nil
	})
	return err
}

func (c *RedisCache) UIDMapping(ctx context.Context, mailbox string) ([]imap.UID, error) {
	data, err := c.rdb.Get(ctx, c.key("uidmap", mailbox)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []imap.UID
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RedisCache) ClearUIDMapping(ctx context.Context, mailbox string) error {
	return c.rdb.Del(ctx, c.key("uidmap", mailbox)).Err()
}

func (c *RedisCache) ClearAllMessages(ctx context.Context, mailbox string) error {
	var keys []string
	for _, pattern := range []string{c.key("msg", mailbox, "*"), c.key("part", mailbox, "*")} {
		iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) ClearMessage(ctx context.Context, mailbox string, uid imap.UID) error {
	keys := []string{c.key("msg", mailbox, fmt.Sprint(uid))}
	iter := c.rdb.Scan(ctx, 0, c.key("part", mailbox, fmt.Sprint(uid), "*"), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) SetMsgPart(ctx context.Context, mailbox string, uid imap.UID, partID string, data []byte) error {
	return c.rdb.Set(ctx, c.key("part", mailbox, fmt.Sprint(uid), partID), data, 0).Err()
}

func (c *RedisCache) SetMsgEnvelope(ctx context.Context, mailbox string, uid imap.UID, env *imap.Envelope) error {
	return c.rdb.HSet(ctx, c.key("msg", mailbox, fmt.Sprint(uid)), "envelope", mustJSON(env)).Err()
}

func (c *RedisCache) SetMsgSize(ctx context.Context, mailbox string, uid imap.UID, size uint32) error {
	return c.rdb.HSet(ctx, c.key("msg", mailbox, fmt.Sprint(uid)), "size", size).Err()
}

func (c *RedisCache) SetMsgStructure(ctx context.Context, mailbox string, uid imap.UID, serialized []byte) error {
	return c.rdb.HSet(ctx, c.key("msg", mailbox, fmt.Sprint(uid)), "structure", serialized).Err()
}

func (c *RedisCache) SetMsgFlags(ctx context.Context, mailbox string, uid imap.UID, flags []imap.Flag) error {
	return c.rdb.HSet(ctx, c.key("msg", mailbox, fmt.Sprint(uid)), "flags", mustJSON(flags)).Err()
}

func (c *RedisCache) MessageMetadata(ctx context.Context, mailbox string, uid imap.UID) (*MessageDataBundle, error) {
	res, err := c.rdb.HGetAll(ctx, c.key("msg", mailbox, fmt.Sprint(uid))).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	bundle := &MessageDataBundle{UID: uid}
	if v, ok := res["envelope"]; ok {
		var env imap.Envelope
		if json.Unmarshal([]byte(v), &env) == nil {
			bundle.Envelope = &env
		}
	}
	if v, ok := res["flags"]; ok {
		json.Unmarshal([]byte(v), &bundle.Flags)
	}
	if v, ok := res["size"]; ok {
		var size uint32
		fmt.Sscanf(v, "%d", &size)
		bundle.Size = size
	}
	if v, ok := res["structure"]; ok {
		bundle.SerializedBodyStructure = []byte(v)
	}
	return bundle, nil
}

func (c *RedisCache) MessagePart(ctx context.Context, mailbox string, uid imap.UID, partID string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, c.key("part", mailbox, fmt.Sprint(uid), partID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

var _ Cache = (*RedisCache)(nil)
