package store

import (
	"context"
	"strings"

	"noema/internal/apperr"
)

// Subscribe returns a stream of Created/Updated/Deleted events for table.
// Postgres-backed stores use LISTEN/NOTIFY (a trigger on the records table
// issues NOTIFY noema_<table>, '<op>:<id>'); the in-memory store uses an
// in-process channel fan-out. Both satisfy the same contract: the channel is
// closed when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context, table string) (<-chan Event, error) {
	if s.pool == nil {
		return s.subscribeMemory(ctx, table), nil
	}
	return s.subscribePostgres(ctx, table)
}

func (s *Store) subscribePostgres(ctx context.Context, table string) (<-chan Event, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "acquire listen connection", err)
	}
	channel := "noema_" + table
	if _, err := conn.Exec(ctx, "LISTEN \""+channel+"\""); err != nil {
		conn.Release()
		return nil, apperr.Wrap(apperr.Transient, "listen", err)
	}

	out := make(chan Event)
	go func() {
		defer conn.Release()
		defer close(out)
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			op, id, ok := strings.Cut(notification.Payload, ":")
			if !ok {
				continue
			}
			var kind EventKind
			switch op {
			case "created":
				kind = EventCreated
			case "updated":
				kind = EventUpdated
			case "deleted":
				kind = EventDeleted
			default:
				continue
			}
			select {
			case out <- Event{Kind: kind, Table: table, ID: id}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) subscribeMemory(ctx context.Context, table string) <-chan Event {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.listeners[table] = append(s.listeners[table], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.listeners[table]
		for i, c := range subs {
			if c == ch {
				s.listeners[table] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// publish fans Event out to every in-memory subscriber of its table. No-op
// for the Postgres backend, which relies on the database trigger instead.
func (s *Store) publish(ev Event) {
	if s.pool != nil {
		return
	}
	s.mu.Lock()
	subs := append([]chan Event(nil), s.listeners[ev.Table]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
