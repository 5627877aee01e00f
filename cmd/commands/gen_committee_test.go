package commands

import (
	"testing"

	"dagbft/privval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gen-validator --seed s --idx i 生成的私钥必须对应委员会里的第i个验证者
func TestSeededCommitteeMatchesValidators(t *testing.T) {
	committee, err := seededCommittee(7, 4)
	require.NoError(t, err)
	require.Equal(t, 4, committee.Size())

	for i := int64(0); i < 4; i++ {
		pv := privval.GenFilePVWithSeedAndIdx("", 7, i)
		index, auth := committee.GetByAddress(pv.GetAddress())
		assert.EqualValues(t, i, index)
		require.NotNil(t, auth)
	}

	again, err := seededCommittee(7, 4)
	require.NoError(t, err)
	assert.Equal(t, committee.Hash(), again.Hash())

	other, err := seededCommittee(8, 4)
	require.NoError(t, err)
	assert.NotEqual(t, committee.Hash(), other.Hash())
}

func TestSeededCommitteeInvalidSize(t *testing.T) {
	_, err := seededCommittee(1, 0)
	assert.Error(t, err)
}
