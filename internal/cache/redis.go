/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gomodule/redigo/redis"
)

// wireResponse is the serialized form stored in Redis: body, status, and
// the header multiset, exactly as the Python original's RedisCache
// serialized `[data, status_code, headers]` into a single JSON blob.
type wireResponse struct {
	Body       []byte      `json:"body"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
}

// redisBackend stores cache entries as a single JSON value per key with a
// TTL applied atomically via SET ... EX, matching the spec's requirement
// that the remote backend use one atomic set-with-expiry operation rather
// than a separate SET + EXPIRE pair.
type redisBackend struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedis dials addr (a redis:// or rediss:// URL) lazily via a
// connection pool and returns a Backend with entries expiring after ttl.
func NewRedis(addr string, ttl time.Duration) Backend {
	pool := &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(addr)
		},
	}
	return &redisBackend{pool: pool, ttl: ttl}
}

func redisKey(key Key) string {
	return fmt.Sprintf("ghcacheproxy:%x", sha256.Sum256([]byte(key.String())))
}

func (r *redisBackend) Get(key Key) (Response, bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", redisKey(key)))
	if err == redis.ErrNil {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, err
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Response{}, false, err
	}
	return Response{StatusCode: wire.StatusCode, Header: wire.Header, Body: wire.Body}, true, nil
}

func (r *redisBackend) Set(key Key, value Response) error {
	conn := r.pool.Get()
	defer conn.Close()

	wire := wireResponse{Body: value.Body, StatusCode: value.StatusCode, Header: value.Header}
	raw, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	_, err = conn.Do("SET", redisKey(key), raw, "EX", int(r.ttl.Seconds()))
	return err
}
