package schema_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echowing/smsgw/internal/schema"
)

type fakeKV struct {
	puts     map[string][]byte
	deleted  []string
	siblings int
}

func newFakeKV() *fakeKV { return &fakeKV{puts: make(map[string][]byte)} }

func (f *fakeKV) Put(ctx context.Context, key string, value []byte) error {
	f.puts[key] = value
	return nil
}
func (f *fakeKV) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.puts, key)
	return nil
}
func (f *fakeKV) HealthySiblingCount(ctx context.Context, serviceName string) (int, error) {
	return f.siblings, nil
}

func TestPublishWritesDescriptorUnderBaseName(t *testing.T) {
	kv := newFakeKV()
	p := schema.New(kv, "echo-wing", "smsgw")

	require.NoError(t, p.Publish(context.Background(), "persistent://echo-wing/main/smsgw", 1000))

	data, ok := kv.puts["echo-wing/smsgw"]
	require.True(t, ok)

	var desc schema.Descriptor
	require.NoError(t, json.Unmarshal(data, &desc))
	assert.Equal(t, "smsgw", desc.ServerName)
	assert.Equal(t, "persistent://echo-wing/main/smsgw", desc.ServerPath)
	assert.Contains(t, desc.ServerData.Fields, "phone")
	assert.Contains(t, desc.ServerData.Fields, "content")
	assert.True(t, desc.ServerData.Fields["phone"].Required)
}

func TestRetractDeletesWhenNoSiblings(t *testing.T) {
	kv := newFakeKV()
	p := schema.New(kv, "echo-wing", "smsgw")
	require.NoError(t, p.Publish(context.Background(), "persistent://echo-wing/main/smsgw", 1000))

	kv.siblings = 0
	require.NoError(t, p.Retract(context.Background()))

	assert.Equal(t, []string{"echo-wing/smsgw"}, kv.deleted)
}

func TestRetractLeavesKeyWhenSiblingsRemain(t *testing.T) {
	kv := newFakeKV()
	p := schema.New(kv, "echo-wing", "smsgw")
	require.NoError(t, p.Publish(context.Background(), "persistent://echo-wing/main/smsgw", 1000))

	kv.siblings = 1
	require.NoError(t, p.Retract(context.Background()))

	assert.Empty(t, kv.deleted)
	_, stillPresent := kv.puts["echo-wing/smsgw"]
	assert.True(t, stillPresent)
}
