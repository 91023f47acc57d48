// Package catalog follows the catalog database's changes feed so product
// edits reach screens without polling.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/repository"
)

type Change struct {
	GroupID   string
	CompanyID string
	Deleted   bool
}

type ChangeHandler interface {
	ProductGroupChanged(ctx context.Context, change Change)
}

type Watcher struct {
	db      *kivik.DB
	handler ChangeHandler
	since   string
	log     *logrus.Entry
}

func NewWatcher(client *kivik.Client, dbName string, handler ChangeHandler) *Watcher {
	return &Watcher{
		db:      client.DB(dbName),
		handler: handler,
		since:   "now",
		log:     logrus.WithFields(logrus.Fields{"component": "catalog-watcher", "db": dbName}),
	}
}

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Run follows the feed until ctx is cancelled, reconnecting with backoff.
func (w *Watcher) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return
		}
		var wait time.Duration
		wait, backoff = retryDelay(backoff, err)
		if err != nil {
			w.log.WithError(err).WithField("retry_in", wait).Warn("Changes feed interrupted")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// retryDelay returns how long to wait before reconnecting and the delay to
// use after the next failure. A clean feed end resets the backoff.
func retryDelay(current time.Duration, err error) (wait, next time.Duration) {
	if err == nil {
		return minBackoff, minBackoff
	}
	next = current * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return current, next
}

func (w *Watcher) watch(ctx context.Context) error {
	changes := w.db.Changes(ctx, kivik.Params(map[string]interface{}{
		"feed":         "continuous",
		"since":        w.since,
		"include_docs": true,
		"heartbeat":    30000,
	}))
	defer changes.Close()

	for changes.Next() {
		if seq := changes.Seq(); seq != "" {
			w.since = seq
		}
		w.handle(ctx, changes.ID(), changes.Deleted(), changes.ScanDoc)
	}
	return changes.Err()
}

func (w *Watcher) handle(ctx context.Context, docID string, deleted bool, scan func(interface{}) error) {
	if !strings.HasPrefix(docID, "product_group:") {
		return
	}

	change := Change{GroupID: repository.ProductGroupID(docID), Deleted: deleted}
	if !deleted {
		var doc repository.ProductGroupDoc
		if err := scan(&doc); err != nil {
			w.log.WithError(err).WithField("doc_id", docID).Debug("Skipping unreadable change")
			return
		}
		if !doc.IsProductGroup() {
			return
		}
		change.CompanyID = doc.CompanyID
	}

	w.handler.ProductGroupChanged(ctx, change)
}
