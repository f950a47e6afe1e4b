package fault

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, KindTimeout, "flood", "hazard layer call timed out")
	assert.Equal(t, "timeout: hazard layer call timed out (flood): context deadline exceeded", err.Error())

	bare := New(KindInsufficientData, "", "all samples are nodata")
	assert.Equal(t, "insufficient_data: all samples are nodata", bare.Error())
}

func TestKindOf_SurvivesErisWrap(t *testing.T) {
	base := Unavailable("heat", errors.New("file missing"))
	wrapped := eris.Wrap(base, "profile: query heat")

	assert.Equal(t, KindGatewayUnavailable, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindGatewayUnavailable))
	assert.False(t, Is(wrapped, KindTimeout))

	fe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "heat", fe.Input)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, Is(nil, KindGeometry))
}

func TestUnwrap_ReachesCause(t *testing.T) {
	err := Timeout("surge", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGeometry_CarriesDetail(t *testing.T) {
	detail := map[string]bool{"valid": false}
	err := Geometry("asset-1", "polygon failed validation", detail)
	assert.Equal(t, KindGeometry, err.Kind)
	assert.Equal(t, detail, err.Detail)
	assert.Nil(t, err.Unwrap())
}

func TestNewf(t *testing.T) {
	err := Newf(KindGeometry, "ring", "vertex count %d out of range", 2)
	assert.Equal(t, "vertex count 2 out of range", err.Message)
}
