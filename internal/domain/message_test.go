package domain_test

import (
	"slices"
	"testing"

	"github.com/Amund211/msgstore/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestMessageKeyCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a    domain.MessageKey
		b    domain.MessageKey
		want int
	}{
		{
			name: "equal",
			a:    domain.NewMessageKey("folderA", "msg1.txt"),
			b:    domain.NewMessageKey("folderA", "msg1.txt"),
			want: 0,
		},
		{
			name: "folder decides",
			a:    domain.NewMessageKey("folderA", "msg9.txt"),
			b:    domain.NewMessageKey("folderB", "msg1.txt"),
			want: -1,
		},
		{
			name: "name breaks ties",
			a:    domain.NewMessageKey("folderA", "msg2.txt"),
			b:    domain.NewMessageKey("folderA", "msg1.txt"),
			want: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, c.want, c.a.Compare(c.b))
			require.Equal(t, -c.want, c.b.Compare(c.a))
		})
	}

	t.Run("sorting is deterministic", func(t *testing.T) {
		t.Parallel()

		keys := []domain.MessageKey{
			domain.NewMessageKey("b", "1"),
			domain.NewMessageKey("a", "2"),
			domain.NewMessageKey("a", "1"),
		}
		slices.SortFunc(keys, domain.MessageKey.Compare)

		require.Equal(t, []domain.MessageKey{
			domain.NewMessageKey("a", "1"),
			domain.NewMessageKey("a", "2"),
			domain.NewMessageKey("b", "1"),
		}, keys)
	})
}

func TestMessageKeyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "folderA/msg1.txt", domain.NewMessageKey("folderA", "msg1.txt").String())
}
