package repository

import (
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// ChannelRepository caches open channels by relay identity.
type ChannelRepository interface {
	// Save stores ch, closing any other channel cached for the same relay.
	Save(ch *entity.Channel) error
	// FindByIdentity returns a usable channel or ErrNotFound.
	FindByIdentity(id vo.RelayIdentity) (*entity.Channel, error)
	// Delete removes ch if it is still the cached channel and closes it.
	Delete(ch *entity.Channel) error
	All() []*entity.Channel
	Len() int
	// Purge closes and forgets every channel.
	Purge()
}
