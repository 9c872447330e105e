package match

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/entrhq/autofill/pkg/types"
)

// DefaultCacheSize bounds the on-device match cache.
const DefaultCacheSize = 512

type sensitivity string

const (
	classPlain  sensitivity = "plain"
	classSecret sensitivity = "secret"
)

// classOf separates candidate sets with secrets from those without; the
// right answer for a context can differ between them.
func classOf(candidates []types.PersonalInfoItem) sensitivity {
	if types.HasSecrets(candidates) {
		return classSecret
	}
	return classPlain
}

type cacheKey struct {
	context string
	class   sensitivity
}

// matchCache remembers matched keys by field context.
type matchCache struct {
	lru *lru.Cache[cacheKey, string]
}

func newMatchCache(size int) (*matchCache, error) {
	c, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, err
	}
	return &matchCache{lru: c}, nil
}

func (c *matchCache) get(context string, class sensitivity) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(cacheKey{context: context, class: class})
}

func (c *matchCache) put(context string, class sensitivity, key string) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey{context: context, class: class}, key)
}

func (c *matchCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *matchCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
