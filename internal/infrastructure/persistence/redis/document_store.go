package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
)

// Each document is a hash {v: version, b: body} under "<ns>:doc:<path>".
const (
	fieldVersion = "v"
	fieldBody    = "b"
)

// putScript bumps the version and writes the body in one step.
var putScript = redis.NewScript(`
local v = redis.call('HINCRBY', KEYS[1], 'v', 1)
redis.call('HSET', KEYS[1], 'b', ARGV[1])
return v
`)

// casScript writes only if the stored version equals ARGV[1]; 0 means absent.
var casScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
if cur ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', cur + 1, 'b', ARGV[2])
return 1
`)

// DocumentStore implements docstore.Store on Redis hashes.
type DocumentStore struct {
	client *Client
}

// NewDocumentStore wraps client.
func NewDocumentStore(client *Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) key(path string) string {
	return s.client.Key("doc", path)
}

func (s *DocumentStore) Get(ctx context.Context, path string) ([]byte, docstore.Version, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, 0, err
	}

	vals, err := s.client.rdb.HMGet(ctx, s.key(path), fieldVersion, fieldBody).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, docstore.ErrNotFound
	}

	version, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return nil, 0, err
	}
	return []byte(vals[1].(string)), docstore.Version(version), nil
}

func (s *DocumentStore) Put(ctx context.Context, path string, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	return putScript.Run(ctx, s.client.rdb, []string{s.key(path)}, string(body)).Err()
}

func (s *DocumentStore) CompareAndSwap(ctx context.Context, path string, expected docstore.Version, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}

	ok, err := casScript.Run(ctx, s.client.rdb, []string{s.key(path)}, int64(expected), string(body)).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return docstore.ErrConflict
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	keyPrefix := s.key(prefix)
	iter := s.client.rdb.Scan(ctx, 0, escapeGlob(keyPrefix)+"*", 200).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGet(ctx, k, fieldBody)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for i, cmd := range cmds {
		body, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rest := strings.TrimPrefix(keys[i], keyPrefix); rest != "" {
			out[rest] = body
		}
	}
	return out, nil
}

func (s *DocumentStore) DeletePrefix(ctx context.Context, prefix string) error {
	return s.client.deleteByPattern(ctx, escapeGlob(s.key(prefix))+"*")
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *DocumentStore) Close() error {
	return s.client.Close()
}

var _ docstore.Store = (*DocumentStore)(nil)
