package privdrop

import (
	"os/user"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCurrentUser(t *testing.T) {
	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		t.Skipf("primary group not resolvable: %v", err)
	}

	c, err := Resolve(u.Username, []string{g.Name})
	require.NoError(t, err)
	assert.Equal(t, u.Uid, strconv.Itoa(c.UID))
	assert.Equal(t, u.Gid, strconv.Itoa(c.GID))
	assert.Equal(t, []int{c.GID}, c.Groups)
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("no-such-user-tiny-dfr", nil)
	assert.Error(t, err)

	u, err := user.Current()
	require.NoError(t, err)
	_, err = Resolve(u.Username, []string{"no-such-group-tiny-dfr"})
	assert.Error(t, err)
}

func TestDropRequiresRoot(t *testing.T) {
	if syscall.Geteuid() == 0 {
		t.Skip("running as root; dropping would affect the test process")
	}
	assert.ErrorIs(t, Drop(DefaultUser, DefaultGroups...), ErrNotRoot)
}
