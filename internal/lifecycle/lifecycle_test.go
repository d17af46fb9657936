package lifecycle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegal(t *testing.T) {
	t.Run("pipeline path is legal end to end", func(t *testing.T) {
		path := []Status{StatusUnapproved, StatusApproved, StatusSigned, StatusSubmitted, StatusConfirmed}
		for i := 0; i < len(path)-1; i++ {
			assert.True(t, Legal(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
		}
	})

	t.Run("every status may fail except terminal ones", func(t *testing.T) {
		for _, s := range []Status{StatusUnapproved, StatusApproved, StatusSigned, StatusSubmitted} {
			assert.True(t, Legal(s, StatusFailed), "%s -> failed", s)
		}
		for _, s := range []Status{StatusConfirmed, StatusRejected, StatusCancelled, StatusFailed, StatusReceiving} {
			assert.False(t, Legal(s, StatusFailed), "%s -> failed", s)
		}
	})

	t.Run("no backward transitions", func(t *testing.T) {
		assert.False(t, Legal(StatusApproved, StatusUnapproved))
		assert.False(t, Legal(StatusSubmitted, StatusSigned))
		assert.False(t, Legal(StatusConfirmed, StatusSubmitted))
	})

	t.Run("cancellation is only possible before signing", func(t *testing.T) {
		assert.True(t, Legal(StatusUnapproved, StatusCancelled))
		assert.True(t, Legal(StatusApproved, StatusCancelled))
		assert.False(t, Legal(StatusSigned, StatusCancelled))
		assert.False(t, Legal(StatusSubmitted, StatusCancelled))
	})

	t.Run("unknown statuses go nowhere", func(t *testing.T) {
		assert.False(t, Legal(Status("bogus"), StatusFailed))
		assert.False(t, Legal(StatusUnapproved, Status("bogus")))
	})
}

func TestTerminal(t *testing.T) {
	terminal := []Status{
		StatusConfirmed, StatusRejected, StatusCancelled, StatusFailed,
		StatusReceiving, StatusCancelSubmitted, StatusAccelerateSubmitted,
	}
	for _, s := range terminal {
		assert.True(t, Terminal(s), "%s should be terminal", s)
		assert.Empty(t, Next(s))
	}

	for _, s := range []Status{StatusUnapproved, StatusApproved, StatusSigned, StatusSubmitted} {
		assert.False(t, Terminal(s), "%s should not be terminal", s)
		assert.NotEmpty(t, Next(s))
	}

	// Unknown statuses are not terminal, they are unknown.
	assert.False(t, Terminal(Status("bogus")))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(StatusUnapproved))
	assert.True(t, Known(StatusAccelerateSubmitted))
	assert.False(t, Known(Status("bogus")))
}

// Random walks along the graph must always end in a terminal status and
// never revisit a status: the graph is a DAG with no cycles.
func TestRandomWalkTerminates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		visited := map[Status]bool{StatusUnapproved: true}
		s := StatusUnapproved
		for steps := 0; ; steps++ {
			next := Next(s)
			if len(next) == 0 {
				assert.True(t, Terminal(s))
				break
			}
			require.Less(t, steps, 10, "walk did not terminate")
			s = next[rng.Intn(len(next))]
			require.False(t, visited[s], "revisited %s", s)
			visited[s] = true
		}
	}
}

func TestNext_ReturnsCopy(t *testing.T) {
	next := Next(StatusUnapproved)
	next[0] = Status("mutated")
	assert.NotContains(t, Next(StatusUnapproved), Status("mutated"))
}
