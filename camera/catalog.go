// Package camera keeps what the vehicle's cameras announce and send: the
// discovered stream catalog, the latest still frame and the external
// players launched for live streams.
package camera

import (
	"slices"
	"sync"
	"time"

	"github.com/sendergui/groundstation/codec"
	"github.com/sendergui/groundstation/events"
)

// Catalog holds the most recent discovery broadcast. Each broadcast
// replaces the previous list.
type Catalog struct {
	mu      sync.RWMutex
	cams    []codec.CameraDescriptor
	updated time.Time

	Changes *events.Feed[[]codec.CameraDescriptor]
}

func NewCatalog() *Catalog {
	return &Catalog{Changes: events.NewFeed[[]codec.CameraDescriptor]()}
}

// Replace installs cams. It reports whether the list differs from the
// previous one; Changes fires only then.
func (c *Catalog) Replace(cams []codec.CameraDescriptor) bool {
	c.mu.Lock()
	changed := !slices.Equal(c.cams, cams)
	c.cams = slices.Clone(cams)
	c.updated = time.Now()
	list := slices.Clone(c.cams)
	c.mu.Unlock()

	if changed {
		c.Changes.Publish(list)
	}
	return changed
}

// List returns the current cameras and when they were last announced.
func (c *Catalog) List() ([]codec.CameraDescriptor, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.cams), c.updated
}

// Lookup finds a camera by label.
func (c *Catalog) Lookup(label string) (codec.CameraDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cam := range c.cams {
		if cam.Label == label {
			return cam, true
		}
	}
	return codec.CameraDescriptor{}, false
}
