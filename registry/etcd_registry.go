// Package registry provides discovery of mcp server endpoints, with an
// etcd-backed implementation.
//
// Layout in etcd:
//
//	Key:   /mini-mcp/{service}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL leases: if the server dies without deregistering,
// the lease expires and the entry disappears on its own, so clients never
// discover a ghost instance.
package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/mini-mcp/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

// Register advertises an instance under a TTL lease and keeps the lease
// renewed in the background until the client is closed or Deregister runs.
func (r *EtcdRegistry) Register(service string, instance ServiceInstance, ttl int64) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+service+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.logger.Debug("keepalive channel closed",
			zap.String("service", service), zap.String("addr", instance.Addr))
	}()
	return nil
}

// Deregister removes an instance. Called during graceful shutdown before the
// listener closes, so clients stop routing here first.
func (r *EtcdRegistry) Deregister(service string, addr string) error {
	_, err := r.client.Delete(context.Background(), keyPrefix+service+"/"+addr)
	return err
}

// Discover returns all currently advertised instances for a service.
func (r *EtcdRegistry) Discover(service string) ([]ServiceInstance, error) {
	prefix := keyPrefix + service + "/"
	resp, err := r.client.Get(context.Background(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits a fresh instance list whenever the service's prefix changes
// (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(service string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	prefix := keyPrefix + service + "/"

	go func() {
		watchChan := r.client.Watch(context.Background(), prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change; simpler than folding
			// individual events into local state.
			instances, err := r.Discover(service)
			if err != nil {
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

// Close releases the underlying etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
