package domain

import "context"

type ChannelRepository interface {
	Add(ctx context.Context, channel StateChannel) error
	Update(ctx context.Context, channel StateChannel) error
	Get(ctx context.Context, id string) (*StateChannel, error)
	GetByParticipant(ctx context.Context, participant string) ([]StateChannel, error)
	GetOpenPastTimeout(ctx context.Context, now int64) ([]StateChannel, error)
	Close()
}
