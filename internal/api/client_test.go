package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/harvestagent/internal/hooks"
	"github.com/soyeahso/harvestagent/internal/logging"
)

func TestClient_Wants(t *testing.T) {
	all := NewClient(nil, "test", nil)
	assert.True(t, all.Wants(hooks.EventHarvestStart))
	assert.True(t, all.Wants("anything"))

	some := NewClient(nil, "test", []string{" harvest_start", "", "invoke_finish "})
	assert.True(t, some.Wants("harvest_start"))
	assert.True(t, some.Wants("invoke_finish"))
	assert.False(t, some.Wants("server_start"))
	assert.NotEqual(t, all.ConnID, some.ConnID)
}

func TestClientRegistry_AddRemove(t *testing.T) {
	r := NewClientRegistry(logging.New(nil, "silent"))
	c := NewClient(nil, "test", nil)

	r.Add(c)
	assert.Equal(t, 1, r.Count())
	r.Remove(c.ConnID)
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, r.Broadcast("harvest_start", nil, 1))
}
