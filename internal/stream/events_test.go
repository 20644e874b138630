package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "SOL_USDC_PERP"

func TestDecodeOrderFill(t *testing.T) {
	raw := []byte(`{"stream":"account.orderUpdate","data":{"e":"orderFill","s":"SOL_USDC_PERP","c":3,"S":"Bid","p":"106.0","l":"0.5","X":"Filled"}}`)

	event, err := Decode(raw, testSymbol)
	require.NoError(t, err)
	assert.Equal(t, EventOrderFill, event.Type)
	require.NotNil(t, event.Order)
	assert.Equal(t, 3, event.Order.ClientID)
	assert.Equal(t, "106.0", event.Order.Price)
}

func TestDecodeOrderCancel(t *testing.T) {
	raw := []byte(`{"stream":"account.orderUpdate","data":{"e":"orderCancel","s":"SOL_USDC_PERP","c":7}}`)

	event, err := Decode(raw, testSymbol)
	require.NoError(t, err)
	assert.Equal(t, EventOrderCancel, event.Type)
	assert.Equal(t, 7, event.Order.ClientID)
}

func TestDecodePositionUpdate(t *testing.T) {
	raw := []byte(`{"stream":"account.positionUpdate","data":{"e":"positionUpdate","s":"SOL_USDC_PERP","q":"2.5","M":"105.2"}}`)

	event, err := Decode(raw, testSymbol)
	require.NoError(t, err)
	assert.Equal(t, EventPositionUpdate, event.Type)
	require.NotNil(t, event.Position)
	assert.Equal(t, "2.5", event.Position.NetQuantity)
}

func TestDecodeMarkPrice(t *testing.T) {
	raw := []byte(`{"stream":"markPrice.SOL_USDC_PERP","data":{"e":"markPrice","s":"SOL_USDC_PERP","p":"107.31"}}`)

	event, err := Decode(raw, testSymbol)
	require.NoError(t, err)
	assert.Equal(t, EventMarkPrice, event.Type)
	require.NotNil(t, event.MarkPrice)
	assert.Equal(t, "107.31", event.MarkPrice.MarkPrice)
}

func TestDecodeDropsUnknownFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown channel", `{"stream":"trades.SOL_USDC_PERP","data":{}}`},
		{"mark price of another symbol", `{"stream":"markPrice.ETH_USDC_PERP","data":{"p":"1"}}`},
		{"uninteresting order sub-event", `{"stream":"account.orderUpdate","data":{"e":"orderAccepted","c":1}}`},
		{"subscription ack", `{"id":1,"result":null}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := Decode([]byte(tc.raw), testSymbol)
			require.NoError(t, err)
			assert.Equal(t, EventUnrecognized, event.Type)
		})
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`{"stream": "account.orderUpdate", "data":`), testSymbol)
	require.Error(t, err)

	_, err = Decode([]byte(`not json at all`), testSymbol)
	require.Error(t, err)
}
