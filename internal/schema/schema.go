// Package schema implements the Schema Publisher component (spec.md §4.7):
// at startup, publish a field-descriptor document under a well-known KV
// key; at shutdown, retract it if no siblings remain. The discovery-store
// client itself is out of scope (spec.md §1): this package depends only on
// the abstract KVStore contract below, grounded in the original system's
// consul_client.py (register/deregister + KV put/delete-if-last-instance).
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// KVStore is the abstract discovery/KV contract the publisher relies on.
// A concrete implementation talks to whatever store is deployed (Consul in
// the original system); none is specified here.
type KVStore interface {
	// Put writes value at key, last-writer-wins.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// HealthySiblingCount reports how many other live instances of
	// serviceName the store currently knows about.
	HealthySiblingCount(ctx context.Context, serviceName string) (int, error)
}

// Field describes one accepted request field (spec.md §3 SchemaDescriptor).
type Field struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
	Description string `json:"description"`
}

// Descriptor is the document published at <Base>/<Name> (spec.md §6).
type Descriptor struct {
	ServerName string           `json:"ServerName"`
	ServerPath string           `json:"ServerPath"`
	ServerDesc string           `json:"ServerDesc"`
	ServerData DescriptorFields `json:"ServerData"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// DescriptorFields wraps the field map under the "fields" key (spec.md §6).
type DescriptorFields struct {
	Fields map[string]Field `json:"fields"`
}

// RequestFields is the field map for the inbound message shape this service
// accepts (spec.md §6 inbound message, §4.7).
func RequestFields() map[string]Field {
	return map[string]Field{
		"phone": {
			Type:        "string",
			Required:    true,
			Pattern:     `^(\+\d{10,15}|1[3-9]\d{9})$`,
			Description: "destination number, E.164 or national with configured default country code",
		},
		"content": {
			Type:        "string",
			Required:    true,
			MinLength:   1,
			Description: "UTF-8 message body",
		},
		"metadata": {
			Type:        "object",
			Required:    false,
			Description: "arbitrary passthrough metadata",
		},
	}
}

// Publisher owns the lifecycle of one service's published descriptor.
type Publisher struct {
	store       KVStore
	base        string
	serviceName string
	key         string
}

// New constructs a Publisher that will publish under base/serviceName.
func New(store KVStore, base, serviceName string) *Publisher {
	return &Publisher{
		store:       store,
		base:        base,
		serviceName: serviceName,
		key:         fmt.Sprintf("%s/%s", base, serviceName),
	}
}

// Publish PUTs the service descriptor (spec.md §4.7, §4.8 startup step).
func (p *Publisher) Publish(ctx context.Context, topicPath string, now int64) error {
	desc := Descriptor{
		ServerName: p.serviceName,
		ServerPath: topicPath,
		ServerDesc: "SMS dispatch gateway",
		ServerData: DescriptorFields{Fields: RequestFields()},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return errors.Wrap(err, "schema: marshal descriptor")
	}
	if err := p.store.Put(ctx, p.key, data); err != nil {
		return errors.Wrap(err, "schema: publish")
	}
	return nil
}

// Retract deletes the descriptor if no healthy siblings remain (spec.md
// §4.7 shutdown, §4.8 shutdown step). Idempotent: safe to call more than
// once, or when Publish never succeeded.
func (p *Publisher) Retract(ctx context.Context) error {
	count, err := p.store.HealthySiblingCount(ctx, p.serviceName)
	if err != nil {
		return errors.Wrap(err, "schema: check siblings")
	}
	if count > 0 {
		return nil
	}
	return errors.Wrap(p.store.Delete(ctx, p.key), "schema: retract")
}
