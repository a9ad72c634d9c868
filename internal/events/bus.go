// bus.go
//
// Workshop BOM allocation and document sync service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of benchtop.
// benchtop is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// benchtop is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with benchtop.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/sirupsen/logrus"
)

// Wildcards for Subscribe
const (
	AnyKind models.Kind = ""
	AnyType Type        = ""
)

// Handler reacts to an event
type Handler func(ctx context.Context, ev Event) error

// Recorder persists an event once its handlers ran
type Recorder interface {
	Record(ctx context.Context, ev Event, failures int) error
}

type subscription struct {
	kind    models.Kind
	typ     Type
	name    string
	handler Handler
}

// Bus dispatches events to handlers in registration order
type Bus struct {
	mu       sync.RWMutex
	subs     []subscription
	recorder Recorder
	logger   logrus.FieldLogger
}

// NewBus creates a bus logging handler failures to logger
func NewBus(logger logrus.FieldLogger) *Bus {
	return &Bus{logger: logger}
}

// SetRecorder sets the journal written after every publish
func (b *Bus) SetRecorder(r Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// Subscribe registers handler for kind and typ, AnyKind and AnyType match all
func (b *Bus) Subscribe(kind models.Kind, typ Type, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: kind, typ: typ, name: name, handler: handler})
}

// Publish runs every matching handler. Failures are logged and joined into
// the returned error, one failing handler never stops the others.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if (s.kind == AnyKind || s.kind == ev.Kind) && (s.typ == AnyType || s.typ == ev.Type) {
			subs = append(subs, s)
		}
	}
	recorder := b.recorder
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := b.run(ctx, s, ev); err != nil {
			config.LogError(b.logger, "events", "Publish", s.name, logrus.Fields{
				"event":    ev.Type,
				"kind":     ev.Kind,
				"entityId": ev.EntityID,
			}, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if recorder != nil {
		if err := recorder.Record(ctx, ev, len(errs)); err != nil {
			config.LogError(b.logger, "events", "Publish", "journal", ev.ID.String(), err)
		}
	}

	return errors.Join(errs...)
}

func (b *Bus) run(ctx context.Context, s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, ev)
}
