// Package store 本地键值存储：少量 JSON 数据的跨重启持久化
// 保存行车日志草稿（tripLogDraft:<ticketId>）和后台行程标记（activeTripMarker）
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// 预设键
const (
	KeyActiveTripMarker = "activeTripMarker"
	draftKeyPrefix      = "tripLogDraft:"
)

// bucketName 所有键放在同一个 bucket 里
const bucketName = "fleettrack"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("store: key not found")

// DraftKey 生成行车票对应的草稿键
func DraftKey(ticketID int64) string {
	return fmt.Sprintf("%s%d", draftKeyPrefix, ticketID)
}

// Store bbolt 封装
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open 打开（必要时创建）数据库文件并初始化 bucket
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Get 读取键对应的 JSON 值并解码到 v
// 键不存在时返回 ErrNotFound
func (s *Store) Get(key string, v interface{}) error {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// bbolt 的返回值仅在事务内有效，需要拷贝
		raw = make([]byte, len(data))
		copy(raw, data)
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode stored value %s: %w", key, err)
	}
	return nil
}

// Set 将 v 编码为 JSON 并写入键
func (s *Store) Set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Debug("Stored value", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Delete 删除键，键不存在时为无操作
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
