package rowcodec

import (
	"math"
	"strings"
	"testing"

	. "github.com/pingcap/check"
	"github.com/pingcap-incubator/tinydb/types"
)

func TestT(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&testSuite{})

type testSuite struct{}

func (s *testSuite) TestRowCodec(c *C) {
	tuple := types.NewTuple(1, nil, "abcd", int64(math.MaxInt64), -300, nil)
	data, err := EncodeTuple(nil, tuple)
	c.Assert(err, IsNil)
	c.Assert(data[0], Equals, byte(CodecVer))
	c.Assert(data[1], Equals, byte(0))

	got, err := DecodeTuple(data, len(tuple))
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, len(tuple))
	for i := range tuple {
		c.Assert(got[i].Compare(tuple[i]), Equals, 0, Commentf("column %d", i))
	}
}

func (s *testSuite) TestBuilderReuse(c *C) {
	var rb RowBuilder
	rb.SetTuple(types.NewTuple("x", 2))
	first, err := rb.Build(nil)
	c.Assert(err, IsNil)

	rb.SetTuple(types.NewTuple(nil, nil, 7))
	second, err := rb.Build(nil)
	c.Assert(err, IsNil)

	t1, err := DecodeTuple(first, 2)
	c.Assert(err, IsNil)
	c.Assert(t1[0].GetString(), Equals, "x")
	c.Assert(t1[1].GetInt64(), Equals, int64(2))

	t2, err := DecodeTuple(second, 3)
	c.Assert(err, IsNil)
	c.Assert(t2[0].IsNull(), IsTrue)
	c.Assert(t2[1].IsNull(), IsTrue)
	c.Assert(t2[2].GetInt64(), Equals, int64(7))
}

func (s *testSuite) TestLargeRow(c *C) {
	big := strings.Repeat("a", math.MaxUint16+10)
	data, err := EncodeTuple(nil, types.NewTuple(big, 1))
	c.Assert(err, IsNil)
	c.Assert(data[1], Equals, byte(1))
	got, err := DecodeTuple(data, 2)
	c.Assert(err, IsNil)
	c.Assert(got[0].GetString(), Equals, big)
	c.Assert(got[1].GetInt64(), Equals, int64(1))
}

func (s *testSuite) TestCorruptRow(c *C) {
	_, err := DecodeTuple([]byte{1, 2}, 1)
	c.Assert(err, NotNil)
	_, err = DecodeTuple([]byte{CodecVer, 0, 1, 0, 0, 0}, 1)
	c.Assert(err, NotNil)

	data, err := EncodeTuple(nil, types.NewTuple(1, 2))
	c.Assert(err, IsNil)
	_, err = DecodeTuple(data, 1)
	c.Assert(err, NotNil)
}
