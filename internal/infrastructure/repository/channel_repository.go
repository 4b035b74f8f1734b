package repository

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"ikedadada/go-onehop/internal/domain/entity"
	repoif "ikedadada/go-onehop/internal/domain/repository"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

type channelRepositoryImpl struct {
	cache *lru.Cache[vo.RelayIdentity, *entity.Channel]
}

// NewChannelRepository returns an LRU channel cache holding at most size
// channels. Evicted channels are closed.
func NewChannelRepository(size int) (repoif.ChannelRepository, error) {
	cache, err := lru.NewWithEvict(size, func(_ vo.RelayIdentity, ch *entity.Channel) {
		ch.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("channel cache: %w", err)
	}
	return &channelRepositoryImpl{cache: cache}, nil
}

func (r *channelRepositoryImpl) Save(ch *entity.Channel) error {
	id := ch.Identity()
	if old, ok := r.cache.Peek(id); ok && old != ch {
		// Add on an existing key does not run the evict callback.
		r.cache.Add(id, ch)
		old.Close()
		return nil
	}
	r.cache.Add(id, ch)
	return nil
}

func (r *channelRepositoryImpl) FindByIdentity(id vo.RelayIdentity) (*entity.Channel, error) {
	ch, ok := r.cache.Get(id)
	if !ok {
		return nil, repoif.ErrNotFound
	}
	if !ch.IsUsable() {
		r.Delete(ch)
		return nil, repoif.ErrNotFound
	}
	return ch, nil
}

func (r *channelRepositoryImpl) Delete(ch *entity.Channel) error {
	cur, ok := r.cache.Peek(ch.Identity())
	if !ok || cur != ch {
		ch.Close()
		return repoif.ErrNotFound
	}
	// Remove runs the evict callback, which closes ch.
	r.cache.Remove(ch.Identity())
	return nil
}

func (r *channelRepositoryImpl) All() []*entity.Channel {
	return r.cache.Values()
}

func (r *channelRepositoryImpl) Len() int { return r.cache.Len() }

func (r *channelRepositoryImpl) Purge() { r.cache.Purge() }
