package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acpicore/object"
)

func TestInstallDefaultScopes(t *testing.T) {
	ns := New()
	ns.InstallDefaultScopes()

	for _, name := range []string{"_GPE", "_PR_", "_SB_", "_SI_", "_TZ_"} {
		n, err := ns.Resolve(ns.Root(), name)
		require.Nil(t, err)
		assert.Equal(t, name, n.Name())
	}
}

func TestResolveAbsolutePath(t *testing.T) {
	ns := New()
	sb, err := ns.Install(ns.Root(), "_SB_", object.New(object.KindDevice))
	require.Nil(t, err)
	_, err = ns.Install(sb, "PCI0", object.New(object.KindDevice))
	require.Nil(t, err)

	n, err := ns.Resolve(ns.Root(), `\_SB_.PCI0`)
	require.Nil(t, err)
	assert.Equal(t, `\_SB_.PCI0`, n.AbsolutePath())
}

func TestResolveParentPrefix(t *testing.T) {
	ns := New()
	sb, _ := ns.Install(ns.Root(), "_SB_", object.New(object.KindDevice))
	pci, _ := ns.Install(sb, "PCI0", object.New(object.KindDevice))
	_, _ = ns.Install(pci, "GFX0", object.New(object.KindDevice))

	n, err := ns.Resolve(pci, "^^_SB_.PCI0")
	require.Nil(t, err)
	assert.Equal(t, `\_SB_.PCI0`, n.AbsolutePath())
}

func TestResolveSingleSegmentSearchesUpward(t *testing.T) {
	ns := New()
	sb, _ := ns.Install(ns.Root(), "_SB_", object.New(object.KindDevice))
	_, _ = ns.Install(sb, "FOO_", object.NewInteger(42))
	pci, _ := ns.Install(sb, "PCI0", object.New(object.KindDevice))

	n, err := ns.Resolve(pci, "FOO_")
	require.Nil(t, err)
	assert.Equal(t, uint64(42), n.Get().Integer())
}

func TestResolveNotFound(t *testing.T) {
	ns := New()
	_, err := ns.Resolve(ns.Root(), "NOPE")
	assert.NotNil(t, err)
}

func TestInstallDuplicatePopulatedIsAlreadyExists(t *testing.T) {
	ns := New()
	_, err := ns.Install(ns.Root(), "FOO_", object.NewInteger(1))
	require.Nil(t, err)

	_, err = ns.Install(ns.Root(), "FOO_", object.NewInteger(2))
	assert.NotNil(t, err)
}

func TestRemoveSubtreeReleasesObjects(t *testing.T) {
	ns := New()
	sb, _ := ns.Install(ns.Root(), "_SB_", object.New(object.KindDevice))
	obj := object.NewInteger(7)
	_, _ = ns.Install(sb, "FOO_", obj)
	assert.Equal(t, int32(2), obj.RefCount())

	ns.RemoveSubtree(sb)
	assert.Equal(t, int32(1), obj.RefCount())

	_, err := ns.Resolve(ns.Root(), "_SB_")
	assert.NotNil(t, err)
}

func TestNodeSetSwapsCellWithoutMutatingOldObject(t *testing.T) {
	ns := New()
	n, _ := ns.Install(ns.Root(), "FOO_", object.NewInteger(1))
	old := n.Get()
	n.Set(object.NewInteger(2))

	assert.Equal(t, uint64(1), old.Integer())
	assert.Equal(t, uint64(2), n.Get().Integer())
}
