// Package redisstore keeps quiz sessions in Redis so several server
// processes can grade the same session. Sessions expire with the key TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docqa/internal/domain"
	"docqa/internal/quiz"
)

const maxTxRetries = 8

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Connect dials Redis and checks it answers PING.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.KeyPrefix, cfg.TTL), nil
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "docqa:quiz:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) Create(ctx context.Context, sess quiz.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, c getter, id string) (quiz.Session, error) {
	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quiz.Session{}, domain.ErrUnknownSession
	}
	if err != nil {
		return quiz.Session{}, err
	}
	var sess quiz.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return quiz.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// Evaluate grades inside an optimistic transaction on the session key, so
// concurrent graders of the same question cannot both succeed.
func (s *Store) Evaluate(ctx context.Context, sessionID, questionID, answer string) (quiz.Result, error) {
	key := s.key(sessionID)
	var res quiz.Result
	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		res, err = sess.Grade(questionID, answer)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(sess.Questions) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			data, err := json.Marshal(sess)
			if err != nil {
				return err
			}
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return res, err
	}
	return quiz.Result{}, fmt.Errorf("grade %s: too much contention", sessionID)
}

func (s *Store) Progress(ctx context.Context, sessionID string) (quiz.Progress, error) {
	sess, err := s.load(ctx, s.client, sessionID)
	if err != nil {
		return quiz.Progress{}, err
	}
	return sess.Progress(), nil
}

func (s *Store) Hint(ctx context.Context, sessionID, questionID string) (string, error) {
	sess, err := s.load(ctx, s.client, sessionID)
	if err != nil {
		return "", err
	}
	return sess.Hint(questionID)
}

func (s *Store) Questions(ctx context.Context, sessionID string) ([]quiz.PublicQuestion, error) {
	sess, err := s.load(ctx, s.client, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]quiz.PublicQuestion, len(sess.Questions))
	for i, q := range sess.Questions {
		out[i] = q.Public(sess.Format)
	}
	return out, nil
}

func (s *Store) End(ctx context.Context, sessionID string) (quiz.Progress, error) {
	raw, err := s.client.GetDel(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quiz.Progress{}, domain.ErrUnknownSession
	}
	if err != nil {
		return quiz.Progress{}, err
	}
	var sess quiz.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return quiz.Progress{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return sess.Progress(), nil
}
