package mathrender

import (
	"context"
	"html"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// Store persists renders across processes. SQLStore implements it.
type Store interface {
	Load(ctx context.Context, key string) (*richtext.Rendering, bool, error)
	Save(ctx context.Context, key string, r *richtext.Rendering) error
}

// Cache memoizes renders by escaped source. Entries are never evicted; a
// cache is meant to live for one conversion run or one process.
// Concurrent callers asking for the same source share a single render.
type Cache struct {
	r     Renderer
	store Store

	mu     sync.Mutex
	images map[string]*richtext.Rendering
	mathml map[string]string
	group  singleflight.Group
}

type Option func(*Cache)

// WithStore backs the cache with persistent storage.
func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

func NewCache(r Renderer, opts ...Option) *Cache {
	c := &Cache{
		r:      r,
		images: map[string]*richtext.Rendering{},
		mathml: map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key is the cache key for a math source.
func Key(src string) string { return html.EscapeString(strings.TrimSpace(src)) }

// RenderMath returns the cached image for src, rendering it on a miss.
// Failed renders are not cached.
func (c *Cache) RenderMath(ctx context.Context, src string) (*richtext.Rendering, error) {
	key := Key(src)
	c.mu.Lock()
	if r, ok := c.images[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("img:"+key, func() (any, error) {
		c.mu.Lock()
		if r, ok := c.images[key]; ok {
			c.mu.Unlock()
			return r, nil
		}
		c.mu.Unlock()

		if c.store != nil {
			r, ok, err := c.store.Load(ctx, key)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("math render store load failed")
			} else if ok {
				c.put(key, r)
				return r, nil
			}
		}

		r, err := c.r.Render(ctx, src)
		if err != nil {
			return nil, err
		}
		c.put(key, r)
		if c.store != nil {
			if err := c.store.Save(ctx, key, r); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("math render store save failed")
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*richtext.Rendering), nil
}

func (c *Cache) put(key string, r *richtext.Rendering) {
	c.mu.Lock()
	c.images[key] = r
	c.mu.Unlock()
}

// RenderMathML delegates to the renderer when it can produce MathML.
func (c *Cache) RenderMathML(ctx context.Context, src string) (string, error) {
	mr, ok := c.r.(richtext.MathMLRenderer)
	if !ok {
		return "", ErrUnsupported
	}
	key := Key(src)
	c.mu.Lock()
	if s, ok := c.mathml[key]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("mml:"+key, func() (any, error) {
		s, err := mr.RenderMathML(ctx, src)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.mathml[key] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len is the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}
