package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, name := range []string{"ISSUER_ROLE", "APPROVER_ROLE", "BRIDGE_ROLE", "DEFAULT_ADMIN_ROLE"} {
		kind, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, Kind(name), kind)
	}

	_, err := ParseKind("MINTER_ROLE")
	assert.Error(t, err)
}

func TestKindScope(t *testing.T) {
	assert.Equal(t, ScopeFungible, KindBridge.Scope())
	assert.Equal(t, ScopeCertificate, KindIssuer.Scope())
	assert.Equal(t, ScopeCertificate, KindApprover.Scope())
	assert.Equal(t, ScopeCertificate, KindAdmin.Scope())
}
