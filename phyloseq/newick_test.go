package phyloseq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewickRoundTrip(t *testing.T) {
	for _, s := range []string{
		"((t1:0.5,t2:0.125)0.95:0.25,t3:0.3);",
		"(a,b,(c,d)e)root;",
		"('a b':1,'it''s':2);",
		"single;",
	} {
		tree, err := ParseNewickString(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, tree.Newick())
	}
}

func TestParseNewickTolerates(t *testing.T) {
	tree, err := ParseNewickString(" [&R] ( t1 : 1 ,\n t2:2 ) ; \n")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, tree.Tips())
	assert.Equal(t, "(t1:1,t2:2);", tree.Newick())

	// The terminating semicolon is optional.
	tree, err = ParseNewickString("(x,y)")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tree.Tips())
}

func TestParseNewickErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"(a,b",
		"(a,b);(c,d);",
		"(a:x,b);",
		"(a,);",
		"('open,b);",
	} {
		_, err := ParseNewickString(s)
		assert.Error(t, err, "%q", s)
	}
}

func TestTreePrune(t *testing.T) {
	tree, err := ParseNewickString("((t1:0.5,t2:0.125)0.95:0.25,t3:0.3);")
	require.NoError(t, err)

	pruned := tree.Prune(map[string]bool{"t1": true, "t3": true})
	assert.Equal(t, "(t1:0.75,t3:0.3);", pruned.Newick())

	// The original is unchanged.
	assert.Equal(t, []string{"t1", "t2", "t3"}, tree.Tips())

	assert.Equal(t, "t2:0.375;", tree.Prune(map[string]bool{"t2": true}).Newick())
	assert.Nil(t, tree.Prune(map[string]bool{"nope": true}))

	var none *Tree
	assert.Nil(t, none.Prune(map[string]bool{"t1": true}))
}

func TestTreeCloneIsDeep(t *testing.T) {
	tree, err := ParseNewickString("((a:1,b:2):3,c:4);")
	require.NoError(t, err)

	c := tree.Clone()
	require.True(t, tree.Equal(c))

	c.Root.Children[1].Name = "z"
	assert.False(t, tree.Equal(c))
	assert.Equal(t, []string{"a", "b", "c"}, tree.Tips())
}
