package service

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/catalog"
	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/websocket"
)

const groupOwnerCapacity = 10000

// CatalogSync reacts to product group changes in the catalog. Admins are
// told about the change and digital menus of the company get a fresh
// playlist.
type CatalogSync struct {
	store     *repository.Store
	source    CatalogSource
	playlists *PlaylistService
	notifier  *Notifier
	// owners maps product group ids to their company. Deleted documents
	// carry no company, so this is the only way to scope their fan-out.
	owners *ttlcache.Cache[string, string]
	log    *logrus.Entry
}

func NewCatalogSync(store *repository.Store, source CatalogSource, playlists *PlaylistService, notifier *Notifier) *CatalogSync {
	return &CatalogSync{
		store:     store,
		source:    source,
		playlists: playlists,
		notifier:  notifier,
		owners:    ttlcache.New[string, string](ttlcache.WithCapacity[string, string](groupOwnerCapacity)),
		log:       logrus.WithField("component", "catalog-sync"),
	}
}

// Prime learns the owner of every product group that exists before the
// changes feed starts.
func (c *CatalogSync) Prime(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	companies, err := c.store.Companies.List(ctx, "")
	if err != nil {
		return err
	}
	for _, company := range companies {
		groups, err := c.source.ProductGroups(ctx, company.ID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			c.owners.Set(g.ID, company.ID, ttlcache.DefaultTTL)
		}
	}
	c.log.WithField("groups", c.owners.Len()).Debug("Product group owners loaded")
	return nil
}

func (c *CatalogSync) ProductGroupChanged(ctx context.Context, change catalog.Change) {
	c.playlists.Invalidate()

	if change.Deleted {
		item := c.owners.Get(change.GroupID)
		if item == nil {
			c.log.WithField("group_id", change.GroupID).Info("Deleted product group has no known owner, skipping fan-out")
			return
		}
		change.CompanyID = item.Value()
		c.owners.Delete(change.GroupID)
	} else if change.CompanyID != "" {
		c.owners.Set(change.GroupID, change.CompanyID, ttlcache.DefaultTTL)
	}
	if change.CompanyID == "" {
		return
	}

	c.notifier.ToAdmins(change.CompanyID, websocket.TypeProductUpdated, websocket.ProductUpdatedPayload{
		ProductGroupID: change.GroupID,
		CompanyID:      change.CompanyID,
		Deleted:        change.Deleted,
	})

	pushed := 0
	for _, device := range c.notifier.Hub().OnlineDevices(change.CompanyID) {
		if device.Type != domain.DeviceTypeDigitalMenu {
			continue
		}
		if err := c.playlists.Push(ctx, device, websocket.TypePlaylistUpdate); err != nil {
			c.log.WithError(err).WithField("device_id", device.ID).Warn("Menu refresh failed")
			continue
		}
		pushed++
	}
	c.log.WithFields(logrus.Fields{
		"group_id":   change.GroupID,
		"company_id": change.CompanyID,
		"pushed":     pushed,
	}).Debug("Product group changed")
}
