// Package lock implementa a trava de distribuição compartilhada entre processos usando Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL é a validade padrão da trava
const DefaultTTL = 5 * time.Minute

var (
	// ErrLockNotHeld indica que a trava expirou ou pertence a outro processo
	ErrLockNotHeld = errors.New("trava não pertence a este processo")

	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
)

// Redis é uma trava com dono: só quem adquiriu consegue liberar
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// New cria a trava na chave informada
func New(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// TryLock tenta adquirir a trava sem esperar
func (l *Redis) TryLock(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("erro ao adquirir trava %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Unlock libera a trava se ela ainda for deste processo
func (l *Redis) Unlock(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return ErrLockNotHeld
	}
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("erro ao liberar trava %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Ping verifica a conexão com o Redis
func (l *Redis) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
