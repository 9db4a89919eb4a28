package realtime

import (
	"context"
	"log/slog"
	"sync"

	"blogger/internal/middleware"
	"blogger/internal/models"
	"blogger/internal/observability"
	"blogger/internal/repository"
)

// Source answers the queries behind each view.
type Source interface {
	ListPosts(ctx context.Context, q repository.PostQuery) ([]models.Post, error)
	GetProfileView(ctx context.Context, username string) (*models.ProfileView, error)
}

// Query is a live view definition.
type Query interface {
	View() string
	collections() []string
	matches(change models.Change) bool
	load(ctx context.Context, src Source) (*Snapshot, error)
}

// Snapshot is the complete current state of a view.
type Snapshot struct {
	Type    string              `json:"type"`
	View    string              `json:"view"`
	Posts   []models.Post       `json:"posts"`
	Profile *models.ProfileView `json:"profile,omitempty"`
}

// FeedQuery lists posts newest first, optionally for one author username.
type FeedQuery struct {
	AuthorUsername string
	Limit          int
}

func (q FeedQuery) View() string { return "feed" }

func (q FeedQuery) collections() []string { return []string{models.CollectionPosts} }

func (q FeedQuery) matches(change models.Change) bool {
	if change.Collection != models.CollectionPosts {
		return false
	}
	return q.AuthorUsername == "" || change.Key("author_username") == q.AuthorUsername
}

func (q FeedQuery) load(ctx context.Context, src Source) (*Snapshot, error) {
	posts, err := src.ListPosts(ctx, repository.PostQuery{AuthorUsername: q.AuthorUsername, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	return &Snapshot{Type: "snapshot", View: q.View(), Posts: nonNil(posts)}, nil
}

// ProfileQuery is the profile page: the profile holding Username plus its posts.
type ProfileQuery struct {
	Username string
	Limit    int
}

func (q ProfileQuery) View() string { return "profile" }

func (q ProfileQuery) collections() []string {
	return []string{models.CollectionPosts, models.CollectionUsers}
}

func (q ProfileQuery) matches(change models.Change) bool {
	switch change.Collection {
	case models.CollectionPosts:
		return change.Key("author_username") == q.Username
	case models.CollectionUsers:
		return change.Key("username") == q.Username || change.Key("previous_username") == q.Username
	default:
		return false
	}
}

// load keeps serving the posts of a username nobody holds any more; Profile is then nil.
func (q ProfileQuery) load(ctx context.Context, src Source) (*Snapshot, error) {
	snap := &Snapshot{Type: "snapshot", View: q.View()}

	view, err := src.GetProfileView(ctx, q.Username)
	switch {
	case err == nil:
		snap.Profile = view
	case models.IsCode(err, models.CodeNotFound):
	default:
		return nil, err
	}

	posts, err := src.ListPosts(ctx, repository.PostQuery{AuthorUsername: q.Username, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	snap.Posts = nonNil(posts)
	return snap, nil
}

func nonNil(posts []models.Post) []models.Post {
	if posts == nil {
		return []models.Post{}
	}
	return posts
}

// Projector runs live queries over the broker's change stream.
type Projector struct {
	broker *Broker
	source Source
}

func NewProjector(broker *Broker, source Source) *Projector {
	return &Projector{broker: broker, source: source}
}

// Subscription is one live query. onSnapshot calls are serialised.
type Subscription struct {
	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	cancels []func()
}

// Subscribe loads the first snapshot, then re-queries after every matching
// change. Changes arriving while a query runs collapse into one re-query.
func (p *Projector) Subscribe(ctx context.Context, q Query, onSnapshot func(*Snapshot)) (*Subscription, error) {
	sub := &Subscription{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, coll := range q.collections() {
		sub.cancels = append(sub.cancels, p.broker.Listen(coll, func(change models.Change) {
			if q.matches(change) {
				sub.poke()
			}
		}))
	}

	initial, err := q.load(ctx, p.source)
	if err != nil {
		sub.release()
		return nil, err
	}

	observability.ActiveSubscriptions.WithLabelValues(q.View()).Inc()
	go p.run(ctx, sub, q, initial, onSnapshot)
	return sub, nil
}

func (p *Projector) run(ctx context.Context, sub *Subscription, q Query, snap *Snapshot, onSnapshot func(*Snapshot)) {
	defer close(sub.done)
	defer observability.ActiveSubscriptions.WithLabelValues(q.View()).Dec()

	deliver := func(s *Snapshot) {
		defer func() {
			if r := recover(); r != nil {
				middleware.Logger.ErrorContext(ctx, "snapshot callback panicked",
					slog.String("view", q.View()), slog.Any("panic", r))
			}
		}()
		observability.SnapshotDeliveries.WithLabelValues(q.View()).Inc()
		onSnapshot(s)
	}

	deliver(snap)
	for {
		select {
		case <-sub.stop:
			return
		case <-ctx.Done():
			return
		case <-sub.notify:
		}

		next, err := q.load(ctx, p.source)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "projection refresh failed",
				slog.String("view", q.View()), slog.String("error", err.Error()))
			continue
		}

		// Unsubscribe may have raced the query.
		select {
		case <-sub.stop:
			return
		default:
		}
		deliver(next)
	}
}

func (s *Subscription) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) release() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// Unsubscribe stops the subscription and waits for its goroutine to exit.
// No onSnapshot call starts after it returns. It is safe to call more than
// once but must not be called from onSnapshot.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.release()
		close(s.stop)
	})
	<-s.done
}

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
