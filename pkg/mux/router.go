package mux

import (
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
)

// Router owns the active adapter and remembers which device is routed.
//
// Router is not safe for concurrent use. During a scan the scan worker is its
// only caller; callers sharing a Router across sessions must serialize.
type Router struct {
	adapter Adapter
	log     *zap.Logger

	current string
	routed  bool
}

// NewRouter wraps adapter.
func NewRouter(adapter Adapter, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{adapter: adapter, log: log}
}

// Adapter returns the wrapped adapter.
func (r *Router) Adapter() Adapter { return r.adapter }

// Route connects dev. Routing the device that is already connected does not
// reach the adapter.
func (r *Router) Route(dev device.Device) error {
	if r.routed && r.current == dev.Key {
		return nil
	}
	if err := r.adapter.RouteToDevice(dev.Key, dev.Index); err != nil {
		r.routed = false
		r.current = ""
		return err
	}
	r.current = dev.Key
	r.routed = true
	return nil
}

// DisconnectAll clears every line and forgets the current device.
func (r *Router) DisconnectAll() error {
	r.routed = false
	r.current = ""
	return r.adapter.DisconnectAll()
}

// Current returns the routed device key, if any.
func (r *Router) Current() (string, bool) {
	return r.current, r.routed
}
