package redislivestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anchoros/anchord/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	sourcesKey         = "oracle:sources"
	pairSourcesKeyTmpl = "oracle:pairSources:%s"
	windowKeyTmpl      = "oracle:window:%s:%s" // pair, source
)

type liveStore struct {
	sources            ports.SourceStore
	attestationWindows ports.AttestationWindowStore
}

func NewLiveStore(rdb *redis.Client, windowSize, numOfRetries int) ports.LiveStore {
	return &liveStore{
		sources:            NewSourceStore(rdb),
		attestationWindows: NewAttestationWindowStore(rdb, windowSize, numOfRetries),
	}
}

func (s *liveStore) Sources() ports.SourceStore {
	return s.sources
}

func (s *liveStore) AttestationWindows() ports.AttestationWindowStore {
	return s.attestationWindows
}

type sourceStore struct {
	rdb *redis.Client
}

func NewSourceStore(rdb *redis.Client) ports.SourceStore {
	return &sourceStore{rdb: rdb}
}

func (s *sourceStore) Register(ctx context.Context, sourceID string) error {
	return s.rdb.SAdd(ctx, sourcesKey, sourceID).Err()
}

func (s *sourceStore) Exists(ctx context.Context, sourceID string) (bool, error) {
	return s.rdb.SIsMember(ctx, sourcesKey, sourceID).Result()
}

func (s *sourceStore) GetAll(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, sourcesKey).Result()
}

type attestationWindowStore struct {
	rdb          *redis.Client
	windowSize   int
	numOfRetries int
}

func NewAttestationWindowStore(
	rdb *redis.Client, windowSize, numOfRetries int,
) ports.AttestationWindowStore {
	return &attestationWindowStore{
		rdb:          rdb,
		windowSize:   windowSize,
		numOfRetries: numOfRetries,
	}
}

func (s *attestationWindowStore) Push(
	ctx context.Context, assetPair string, point ports.AttestationPoint,
) (err error) {
	value, err := json.Marshal(pointDTO{
		SourceID:  point.SourceID,
		Value:     point.Value,
		Timestamp: point.Timestamp,
	})
	if err != nil {
		return err
	}

	windowKey := fmt.Sprintf(windowKeyTmpl, assetPair, point.SourceID)
	pairSourcesKey := fmt.Sprintf(pairSourcesKeyTmpl, assetPair)

	for range s.numOfRetries {
		if err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPush(ctx, windowKey, value)
				pipe.LTrim(ctx, windowKey, int64(-s.windowSize), -1)
				pipe.SAdd(ctx, pairSourcesKey, point.SourceID)
				return nil
			})
			return err
		}, windowKey); err == nil {
			return nil
		}
		<-time.After(100 * time.Millisecond)
	}
	return err
}

func (s *attestationWindowStore) LatestBySource(
	ctx context.Context, assetPair string,
) (map[string]ports.AttestationPoint, error) {
	sources, err := s.rdb.SMembers(ctx, fmt.Sprintf(pairSourcesKeyTmpl, assetPair)).Result()
	if err != nil {
		return nil, err
	}

	latest := make(map[string]ports.AttestationPoint, len(sources))
	for _, sourceID := range sources {
		windowKey := fmt.Sprintf(windowKeyTmpl, assetPair, sourceID)
		value, err := s.rdb.LIndex(ctx, windowKey, -1).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var dto pointDTO
		if err := json.Unmarshal(value, &dto); err != nil {
			return nil, err
		}
		latest[sourceID] = dto.toPoint()
	}
	return latest, nil
}

func (s *attestationWindowStore) Window(
	ctx context.Context, assetPair, sourceID string,
) ([]ports.AttestationPoint, error) {
	windowKey := fmt.Sprintf(windowKeyTmpl, assetPair, sourceID)
	values, err := s.rdb.LRange(ctx, windowKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	points := make([]ports.AttestationPoint, 0, len(values))
	for _, value := range values {
		var dto pointDTO
		if err := json.Unmarshal([]byte(value), &dto); err != nil {
			return nil, err
		}
		points = append(points, dto.toPoint())
	}
	return points, nil
}

type pointDTO struct {
	SourceID  string `json:"sourceId"`
	Value     uint64 `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

func (d pointDTO) toPoint() ports.AttestationPoint {
	return ports.AttestationPoint{
		SourceID:  d.SourceID,
		Value:     d.Value,
		Timestamp: d.Timestamp,
	}
}
