package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/notify"
)

func TestCollection(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate     func(c *notify.Collection[string]) bool
		want       []string
		wantEvent  notify.CollectionChanged[string]
		wantProps  []string
		wantResult bool
	}{
		"add": {
			mutate: func(c *notify.Collection[string]) bool {
				c.Add("d", "e")
				return true
			},
			want:       []string{"a", "b", "c", "d", "e"},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionAdd, Index: 3, Items: []string{"d", "e"}},
			wantProps:  []string{notify.PropertyCount, notify.PropertyItems},
			wantResult: true,
		},
		"insert": {
			mutate: func(c *notify.Collection[string]) bool {
				return c.Insert(1, "x")
			},
			want:       []string{"a", "x", "b", "c"},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionAdd, Index: 1, Items: []string{"x"}},
			wantProps:  []string{notify.PropertyCount, notify.PropertyItems},
			wantResult: true,
		},
		"remove": {
			mutate: func(c *notify.Collection[string]) bool {
				return c.Remove("b")
			},
			want:       []string{"a", "c"},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionRemove, Index: 1, Items: []string{"b"}},
			wantProps:  []string{notify.PropertyCount, notify.PropertyItems},
			wantResult: true,
		},
		"remove at": {
			mutate: func(c *notify.Collection[string]) bool {
				return c.RemoveAt(0)
			},
			want:       []string{"b", "c"},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionRemove, Index: 0, Items: []string{"a"}},
			wantProps:  []string{notify.PropertyCount, notify.PropertyItems},
			wantResult: true,
		},
		"replace": {
			mutate: func(c *notify.Collection[string]) bool {
				return c.Replace(2, "z")
			},
			want:       []string{"a", "b", "z"},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionReplace, Index: 2, Items: []string{"z"}},
			wantProps:  []string{notify.PropertyItems},
			wantResult: true,
		},
		"clear": {
			mutate: func(c *notify.Collection[string]) bool {
				c.Clear()
				return true
			},
			want:       []string{},
			wantEvent:  notify.CollectionChanged[string]{Action: notify.ActionReset},
			wantProps:  []string{notify.PropertyCount, notify.PropertyItems},
			wantResult: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := notify.NewCollection("a", "b", "c")

			var (
				events []notify.CollectionChanged[string]
				props  []string
			)

			c.SubscribeChanges(func(e notify.CollectionChanged[string]) {
				events = append(events, e)
			})
			c.Subscribe(func(e notify.PropertyChanged) {
				props = append(props, e.Name)
			})

			assert.Equal(t, tc.wantResult, tc.mutate(c))

			assert.ElementsMatch(t, tc.want, c.Items())
			assert.Equal(t, len(tc.want), c.Len())
			require.Len(t, events, 1)
			assert.Equal(t, tc.wantEvent, events[0])
			assert.Equal(t, tc.wantProps, props)
		})
	}
}

func TestCollection_OutOfRange(t *testing.T) {
	t.Parallel()

	c := notify.NewCollection(1, 2)

	var events int

	c.SubscribeChanges(func(notify.CollectionChanged[int]) {
		events++
	})

	assert.False(t, c.Insert(5, 3))
	assert.False(t, c.RemoveAt(-1))
	assert.False(t, c.Replace(2, 9))
	assert.False(t, c.Remove(42))

	_, ok := c.At(2)
	assert.False(t, ok)

	v, ok := c.At(1)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.IndexOf(2))
	assert.Zero(t, events)
}

func TestCollection_ItemsIsCopy(t *testing.T) {
	t.Parallel()

	c := notify.NewCollection("a")
	items := c.Items()
	items[0] = "changed"

	v, _ := c.At(0)
	assert.Equal(t, "a", v)
}
