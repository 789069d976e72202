// Package transport moves a built delivery package to a destination. Every
// protocol implements Adapter; the orchestrator resolves adapters through a
// Registry keyed by model.Protocol.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// Adapter delivers a package to a target. Uploads are per file and fail fast:
// the first failing file aborts the delivery and earlier files stay in place.
type Adapter interface {
	Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error)

// Deliver calls f.
func (f AdapterFunc) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	return f(ctx, target, pkg)
}

// Options are shared by all adapters.
type Options struct {
	ConnectTimeout     time.Duration
	StagingDir         string
	MultipartThreshold int64
	HTTPClient         *http.Client
	Logger             logger.Logger
}

const (
	defaultConnectTimeout     = 10 * time.Second
	defaultMultipartThreshold = 5 * 1024 * 1024
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.MultipartThreshold <= 0 {
		o.MultipartThreshold = defaultMultipartThreshold
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	return o
}

// Registry maps protocols to adapters.
type Registry struct {
	adapters map[model.Protocol]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Protocol]Adapter)}
}

// Register binds an adapter to a protocol, replacing any previous binding.
func (r *Registry) Register(protocol model.Protocol, adapter Adapter) {
	r.adapters[protocol] = adapter
}

// Get returns the adapter for protocol. An unregistered protocol is a
// validation failure of the target, not a transport failure.
func (r *Registry) Get(protocol model.Protocol) (Adapter, error) {
	adapter, ok := r.adapters[protocol]
	if !ok {
		return nil, model.NewValidationError("protocol", "unsupported protocol %q", protocol)
	}
	return adapter, nil
}

// Validate fails when any protocol of the closed set has no adapter.
func (r *Registry) Validate() error {
	var missing []model.Protocol
	for _, p := range model.ValidProtocols {
		if _, ok := r.adapters[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no transport adapter registered for %v", missing)
	}
	return nil
}

// NewDefaultRegistry registers every built-in adapter. store backs the
// Storage protocol.
func NewDefaultRegistry(opts Options, store ObjectStore) *Registry {
	r := NewRegistry()
	r.Register(model.ProtocolFTP, NewFTPAdapter(opts))
	r.Register(model.ProtocolSFTP, NewSFTPAdapter(opts))
	r.Register(model.ProtocolS3, NewS3Adapter(opts))
	r.Register(model.ProtocolAzure, NewAzureAdapter(opts))
	r.Register(model.ProtocolAPI, NewAPIAdapter(opts))
	r.Register(model.ProtocolDSP, NewDSPAdapter(opts))
	r.Register(model.ProtocolStorage, NewStorageAdapter(opts, store))
	return r
}

func transportErr(protocol model.Protocol, file string, err error) error {
	return &model.TransportError{Protocol: protocol, File: file, Cause: err}
}

func deliveredFile(f model.PackageFile, location string) model.DeliveredFile {
	return model.DeliveredFile{Name: f.Name, Size: f.Size, MD5: f.MD5Hash, Location: location}
}

func joinKey(prefix, name string) string {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
