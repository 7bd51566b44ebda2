package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReferralLink(t *testing.T) {
	link, err := GenerateReferralLink("srd_airdrop_bot", 123456789)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/srd_airdrop_bot?start=ref_123456789", link)

	_, err = GenerateReferralLink("", 123456789)
	assert.Error(t, err)

	_, err = GenerateReferralLink("srd_airdrop_bot", 0)
	assert.Error(t, err)
}

func TestParseReferralPayload(t *testing.T) {
	id, ok := ParseReferralPayload("ref_123456789")
	assert.True(t, ok)
	assert.Equal(t, int64(123456789), id)

	id, ok = ParseReferralPayload(" ref_42 ")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, payload := range []string{"", "123456789", "ref_", "ref_abc", "ref_-5", "ref_0", "start"} {
		_, ok := ParseReferralPayload(payload)
		assert.False(t, ok, "payload %q", payload)
	}
}

func TestGenerateQRCode(t *testing.T) {
	qr, err := GenerateQRCode("srd_airdrop_bot", 123456789)
	require.NoError(t, err)
	assert.NotEmpty(t, qr)
	// PNG-сигнатура.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, qr[:4])

	_, err = GenerateQRCode("", 123456789)
	assert.Error(t, err)
}
