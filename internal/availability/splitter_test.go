package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	got := Split(Interval{at(10, 0), at(12, 0)}, 30*time.Minute)
	assert.Equal(t, []Interval{
		{at(10, 0), at(10, 30)},
		{at(10, 30), at(11, 0)},
		{at(11, 0), at(11, 30)},
		{at(11, 30), at(12, 0)},
	}, got)
}

func TestSplit_DropsRemainder(t *testing.T) {
	got := Split(Interval{at(10, 0), at(11, 50)}, 30*time.Minute)
	assert.Len(t, got, 3)
	assert.Equal(t, at(11, 30), got[2].End)
}

func TestSplit_TooShort(t *testing.T) {
	assert.Empty(t, Split(Interval{at(10, 0), at(10, 20)}, 30*time.Minute))
	assert.Empty(t, Split(Interval{at(10, 0), at(12, 0)}, 0))
}
