package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAvailable_SkipsReserved(t *testing.T) {
	c := Default()
	require.Len(t, c.All(), 4)
	avail := c.Available()
	require.Len(t, avail, 3)
	for _, p := range avail {
		require.NotEqual(t, "Лайка", p.Name)
	}
}

func TestFindAvailable(t *testing.T) {
	c := Default()
	p, ok := c.FindAvailable("  белла ")
	require.True(t, ok)
	require.Equal(t, 2, p.ID)

	_, ok = c.FindAvailable("Лайка")
	require.False(t, ok)

	_, ok = c.FindAvailable("Рекс")
	require.False(t, ok)
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Name = "changed"
	require.Equal(t, "Снежок", c.All()[0].Name)
}
