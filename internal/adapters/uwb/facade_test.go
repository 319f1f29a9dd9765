package uwb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lcalzada-xor/netsim/internal/core/domain"
)

func TestLifecycle(t *testing.T) {
	f := NewFacade()
	id := f.Add(1, 1)
	assert.Equal(t, domain.FacadeID(1), id)

	snap := f.Get(id).Radio
	assert.Equal(t, domain.RadioStateOn, snap.State)

	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)
	assert.Equal(t, uint64(1), f.Get(id).Radio.TxCount)

	f.Patch(id, domain.ChipPatch{Radio: &domain.RadioPatch{State: domain.RadioStateOff}})
	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)
	assert.Equal(t, uint64(1), f.Get(id).Radio.TxCount, "powered-off chip drops traffic")

	f.Reset(id)
	assert.Equal(t, domain.RadioStateOn, f.Get(id).Radio.State)
	assert.Zero(t, f.Get(id).Radio.TxCount)

	f.Remove(id)
	assert.Nil(t, f.Get(id).Radio)
	f.Remove(id)
	f.HandleRequest(id, []byte{0x01}, domain.HCIPacketUnspecified)
}
