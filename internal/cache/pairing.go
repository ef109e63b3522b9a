package cache

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	mrand "math/rand"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var ErrCodeNotFound = errors.New("PAIRING_CODE_NOT_FOUND")

// 配对码字符表：去掉易混淆的 0/O/1/I
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// PairingCache 配对码与端存活状态。配对握手本身在别的服务，
// 这里只负责"码 → 会话"的一次性兑换和两端心跳。
type PairingCache interface {
	PutCode(ctx context.Context, code, sessionID string, ttl time.Duration) error
	// ClaimCode 一次性兑换：成功后码立即失效，第二次兑换返回 ErrCodeNotFound
	ClaimCode(ctx context.Context, code string) (string, error)
	Heartbeat(ctx context.Context, sessionID, role string, ttl time.Duration) error
	// AliveRoles 心跳未过期的端
	AliveRoles(ctx context.Context, sessionID string) ([]string, error)
}

type redisPairing struct {
	rdb *redis.Client
}

func NewRedisPairing(rdb *redis.Client) PairingCache {
	return &redisPairing{rdb: rdb}
}

// NewCode 生成一个 6 位配对码
func NewCode() (string, error) {
	out := make([]byte, 6)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func (p *redisPairing) PutCode(ctx context.Context, code, sessionID string, ttl time.Duration) error {
	return p.rdb.Set(ctx, codeKey(code), sessionID, ttl).Err()
}

func (p *redisPairing) ClaimCode(ctx context.Context, code string) (string, error) {
	sessionID, err := p.rdb.GetDel(ctx, codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCodeNotFound
		}
		return "", err
	}
	return sessionID, nil
}

func (p *redisPairing) Heartbeat(ctx context.Context, sessionID, role string, ttl time.Duration) error {
	pipe := p.rdb.Pipeline()
	// 端集合 + 心跳键一起写
	pipe.SAdd(ctx, rolesKey(sessionID), role)
	// 集合本身给个带抖动的长 TTL，防止同批键一起过期
	pipe.Expire(ctx, rolesKey(sessionID), withJitter(24*time.Hour))
	pipe.Set(ctx, heartbeatKey(sessionID, role), "1", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPairing) AliveRoles(ctx context.Context, sessionID string) ([]string, error) {
	roles, err := p.rdb.SMembers(ctx, rolesKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	// 管道里逐个查心跳键是否还在，存在的就是活着的端
	cmds := make([]*redis.IntCmd, 0, len(roles))
	pipe := p.rdb.Pipeline()
	for _, role := range roles {
		cmds = append(cmds, pipe.Exists(ctx, heartbeatKey(sessionID, role)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	alive := make([]string, 0, len(roles))
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			alive = append(alive, roles[i])
		}
	}
	return alive, nil
}

// withJitter 加随机抖动，防止缓存雪崩
func withJitter(base time.Duration) time.Duration {
	return base + time.Duration(mrand.Int63n(int64(time.Hour)))
}
