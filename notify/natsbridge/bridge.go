/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package natsbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/utils"
)

// DefaultPrefix is the subject prefix used without WithPrefix.
const DefaultPrefix = "listkit.changes"

// ChangeNotice is the message published for each repository event.
type ChangeNotice struct {
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
	Origin   string `json:"origin"`
}

// Reloader is the part of a QueryManager the bridge drives.
type Reloader interface {
	Category() repository.Category
	FetchReload(ctx context.Context, keepPageNumber bool) error
}

type Option func(*Bridge)

func WithPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.prefix = strings.TrimSuffix(prefix, ".")
		}
	}
}

// WithOrigin sets the id stamped on published notices. Notices carrying
// this id are ignored by Watch. Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(b *Bridge) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// WithReloadTimeout bounds each reload triggered by a notice.
func WithReloadTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.reloadTimeout = d
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Bridge relays repository events to NATS and reloads watched managers on
// notices from other origins.
//
// Writes caused by a bridge-triggered reload are not published again, so two
// bridges watching each other do not echo. Local writes to the same category
// that land while such a reload runs are not published either.
type Bridge struct {
	nc            *nats.Conn
	prefix        string
	origin        string
	reloadTimeout time.Duration
	logger        logrus.FieldLogger

	mu        sync.Mutex
	reloading map[repository.Category]int
}

func New(nc *nats.Conn, opts ...Option) *Bridge {
	b := &Bridge{
		nc:            nc,
		prefix:        DefaultPrefix,
		origin:        uuid.NewString(),
		reloadTimeout: 30 * time.Second,
		reloading:     make(map[repository.Category]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = utils.NewLogger("NATS")
	}
	b.logger = b.logger.WithField("origin", b.origin)
	return b
}

func (b *Bridge) Origin() string { return b.origin }

// Subject returns the subject notices for category are published on.
// The category becomes a single token: ASCII letters, digits and '-' are
// kept, every other byte is written as '_' and two hex digits, and the
// empty category is "_". Distinct categories never share a subject.
func (b *Bridge) Subject(category repository.Category) string {
	return b.prefix + "." + subjectToken(string(category))
}

func subjectToken(category string) string {
	if category == "" {
		return "_"
	}
	var sb strings.Builder
	for i := 0; i < len(category); i++ {
		c := category[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "_%02X", c)
		}
	}
	return sb.String()
}

// Publish sends notice, stamping it with this bridge's origin.
func (b *Bridge) Publish(ctx context.Context, notice ChangeNotice) error {
	notice.Origin = b.origin
	return publishJSON(ctx, b.nc, b.Subject(repository.Category(notice.Category)), notice)
}

// Attach publishes a notice for every event of repo until the returned
// function is called.
func (b *Bridge) Attach(repo repository.ObservableRepository) (detach func()) {
	return repo.Subscribe(b.relay)
}

// AttachCategory is Attach restricted to one category.
func (b *Bridge) AttachCategory(repo repository.ObservableRepository, category repository.Category) (detach func()) {
	return repo.SubscribeCategory(category, b.relay)
}

func (b *Bridge) relay(e repository.Event) {
	if b.isReloading(e.Category) {
		return
	}
	notice := ChangeNotice{Category: string(e.Category), Kind: string(e.Kind), Count: e.Count}
	if err := b.Publish(context.Background(), notice); err != nil {
		b.logger.WithError(err).WithField("category", e.Category).Warn("publish change notice failed")
	}
}

// Watch reloads target, keeping its page number, whenever a notice from
// another origin arrives for its category. Reload errors are logged.
func (b *Bridge) Watch(target Reloader) (*nats.Subscription, error) {
	category := target.Category()
	logger := b.logger.WithField("category", category)
	return subscribeJSON(b.nc, b.Subject(category), func(ctx context.Context, notice ChangeNotice) {
		if notice.Origin == b.origin {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, b.reloadTimeout)
		defer cancel()

		b.beginReload(category)
		defer b.endReload(category)

		logger.WithFields(logrus.Fields{"kind": notice.Kind, "from": notice.Origin}).Debug("reloading on remote change")
		if err := target.FetchReload(ctx, true); err != nil {
			logger.WithError(err).Warn("reload on remote change failed")
		}
	}, func(err error) {
		logger.WithError(err).Warn("dropping malformed change notice")
	})
}

func (b *Bridge) beginReload(category repository.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloading[category]++
}

func (b *Bridge) endReload(category repository.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reloading[category] <= 1 {
		delete(b.reloading, category)
		return
	}
	b.reloading[category]--
}

func (b *Bridge) isReloading(category repository.Category) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloading[category] > 0
}
