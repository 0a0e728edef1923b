// Package identity decides which canonical property a record refers to.
//
// Identity is an exact match on the sanitized (address, city, state) triple.
// A record without a city matches only properties stored without one.
package identity

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

// Key is the natural key of a canonical property.
type Key struct {
	Address string
	City    string
	State   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Address, k.City, k.State)
}

// KeyOf builds the key of a sanitized record. Missing parts become "".
func KeyOf(rec models.Record) Key {
	var k Key
	if rec.Address != nil {
		k.Address = *rec.Address
	}
	if rec.City != nil {
		k.City = *rec.City
	}
	if rec.State != nil {
		k.State = *rec.State
	}
	return k
}

// KeyOfProperty returns the key of a stored property.
func KeyOfProperty(p *models.Property) Key {
	return Key{Address: p.Address, City: p.City, State: p.State}
}

// Finder looks a property up by key inside an open transaction. Backends
// that support it lock the matched row until the transaction ends.
type Finder interface {
	FindByKey(ctx context.Context, key Key) (*models.Property, error)
}

// Resolver maps records to existing canonical properties.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the property matching key, or nil when the record
// describes a property the store has not seen yet.
func (r *Resolver) Resolve(ctx context.Context, f Finder, key Key) (*models.Property, error) {
	p, err := f.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
	}
	return p, nil
}

// DefaultStripes is the stripe count used by NewLocker when given n <= 0.
const DefaultStripes = 256

// Locker serializes work on the same key. Distinct keys may share a stripe,
// which only costs parallelism.
type Locker struct {
	stripes []sync.Mutex
}

// NewLocker creates a Locker with n stripes.
func NewLocker(n int) *Locker {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Locker{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its release function.
func (l *Locker) Lock(key Key) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
