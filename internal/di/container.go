// Package di provides a minimal, string-keyed service registry used by
// business modules to publish and resolve shared services.
package di

import "fmt"

// ServiceRegistry is the read side of the container, handed to per-module
// factories so they can pull in already-registered dependencies.
type ServiceRegistry interface {
	Get(name string) interface{}
	Has(name string) bool
}

// Container is the read/write side, used during module registration.
type Container interface {
	ServiceRegistry
	Register(name string, svc interface{})
}

type container struct {
	services map[string]interface{}
}

// NewContainer returns an empty Container.
func NewContainer() Container {
	return &container{services: make(map[string]interface{})}
}

func (c *container) Register(name string, svc interface{}) {
	c.services[name] = svc
}

func (c *container) Get(name string) interface{} {
	return c.services[name]
}

func (c *container) Has(name string) bool {
	_, ok := c.services[name]
	return ok
}

// RegisterToken registers a lazily-typed service under token by invoking
// factory immediately and storing its result. Declared generic so each
// business/<context>/di package can expose typed Get<X> helpers without
// casting at every call site.
func RegisterToken[T any](c Container, token string, factory func(sr ServiceRegistry) T) {
	c.Register(token, factory(c))
}

// MustResolve fetches a service by token and panics with a descriptive
// message if it is absent or of the wrong type. Intended for wiring code in
// module.go, not for request-path logic.
func MustResolve[T any](sr ServiceRegistry, token string) T {
	v := sr.Get(token)
	if v == nil {
		panic(fmt.Sprintf("di: service %q not registered", token))
	}
	typed, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type %T", token, v))
	}
	return typed
}
