package affinity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/modguard/internal/guard/report"
)

func TestCheckUnset(t *testing.T) {
	var sink report.Collector
	cell := NewCell(&sink)

	assert.False(t, cell.Check("com.badlogic.gdx.scenes.scene2d.ui.Label.layout"))
	require.Equal(t, 1, sink.Count(report.KindThreadAffinity))
	assert.Contains(t, sink.All()[0].Message, "before an owning thread was registered")
}

// TestCheckOwnerThread tests that the owning goroutine passes silently.
func TestCheckOwnerThread(t *testing.T) {
	var sink report.Collector
	cell := NewCell(&sink)
	cell.Record()

	_, ok := cell.Owner()
	require.True(t, ok)
	assert.True(t, cell.Check("com.badlogic.gdx.scenes.scene2d.ui.TextField.paste"))
	assert.Empty(t, sink.All())
}

// TestCheckOtherThread tests that each off-thread call reports exactly once.
func TestCheckOtherThread(t *testing.T) {
	var sink report.Collector
	cell := NewCell(&sink)
	cell.Record()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.False(t, cell.Check("com.badlogic.gdx.scenes.scene2d.ui.TextField.paste"))
	}()
	wg.Wait()

	require.Equal(t, 1, sink.Count(report.KindThreadAffinity))
	assert.Contains(t, sink.All()[0].Message, "com.badlogic.gdx.scenes.scene2d.ui.TextField.paste called from goroutine")
}

// TestRecordLastWriterWins tests re-registration from another goroutine.
func TestRecordLastWriterWins(t *testing.T) {
	var sink report.Collector
	cell := NewCell(&sink)
	cell.Record()
	first, _ := cell.Owner()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cell.Record()
	}()
	wg.Wait()

	second, _ := cell.Owner()
	assert.NotEqual(t, first, second)
	assert.False(t, cell.Check("x"))

	cell.Reset()
	_, ok := cell.Owner()
	assert.False(t, ok)
}
