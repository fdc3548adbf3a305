package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_ValueScan(t *testing.T) {
	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	v, err = Metadata{"from": "+1555"}.Value()
	require.NoError(t, err)

	var m Metadata
	require.NoError(t, m.Scan(v))
	assert.Equal(t, Metadata{"from": "+1555"}, m)

	require.NoError(t, m.Scan(`{"a":"b"}`))
	assert.Equal(t, Metadata{"a": "b"}, m)

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(42))
}

func TestContact_AddressFor(t *testing.T) {
	c := Contact{Email: "a@example.com", Phone: "+1555", PushToken: "tok"}
	assert.Equal(t, "a@example.com", c.AddressFor(ChannelEmail))
	assert.Equal(t, "+1555", c.AddressFor(ChannelSMS))
	assert.Equal(t, "tok", c.AddressFor(ChannelPush))
	assert.Empty(t, c.AddressFor(ChannelWebhook))
}
