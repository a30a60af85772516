package blocklist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/russdns/russdns/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Blocks(t *testing.T) {
	s := NewSnapshot("example.com", "Tracker.NET.", "com.au")

	assert.True(t, s.Blocks("example.com"))
	assert.True(t, s.Blocks("www.example.com"))
	assert.True(t, s.Blocks("api.sub.example.com."))
	assert.True(t, s.Blocks("ads.tracker.net"))
	assert.True(t, s.Blocks("shop.com.au"))

	assert.False(t, s.Blocks("example.org"))
	assert.False(t, s.Blocks("com"))
	assert.False(t, s.Blocks("notexample.com"))
	assert.False(t, s.Blocks(""))
	assert.False(t, s.Blocks("."))
}

func Test_BlocksSuffixes(t *testing.T) {
	listed := []string{"example.com", "a.b.example.org"}
	s := NewSnapshot(listed...)

	prefixes := []string{"", "www.", "x.y.", "deep.er.still."}
	for _, d := range listed {
		for _, p := range prefixes {
			assert.True(t, s.Blocks(p+d), p+d)
		}

		parent := d[strings.IndexByte(d, '.')+1:]
		assert.False(t, s.Blocks(parent), parent)
	}
}

func Test_BlocksCaseAndTrailingDot(t *testing.T) {
	s := NewSnapshot("example.com")

	for _, name := range []string{"example.com", "example.com.", "Example.COM.", "EXAMPLE.com"} {
		assert.Equal(t, s.Blocks("example.com"), s.Blocks(name), name)
	}
}

func Test_BlocksTopLevelLabel(t *testing.T) {
	s := NewSnapshot("com")

	assert.True(t, s.Blocks("com"))
	assert.True(t, s.Blocks("COM."))
	assert.False(t, s.Blocks("example.com"))
	assert.False(t, s.Blocks("www.example.com"))
}

func Test_BlocksEscapedDot(t *testing.T) {
	s := NewSnapshot("example.com")

	// a\.example is one label, so the parent is com
	assert.False(t, s.Blocks(`a\.example.com.`))
	assert.True(t, s.Blocks(`a\.b.example.com.`))

	s = NewSnapshot(`a\.example.com`)
	assert.True(t, s.Blocks(`www.a\.example.com.`))
	assert.False(t, s.Blocks("www.example.com."))
}

func Test_BlockList(t *testing.T) {
	cfg := new(config.Config)
	cfg.Blocklist = []string{"test.com."}

	bl := New(cfg)
	assert.Equal(t, 0, bl.Length())
	assert.False(t, bl.Exists("test.com."))

	require.NoError(t, bl.Reload())

	assert.Equal(t, 1, bl.Length())
	assert.True(t, bl.Exists("test.com."))
	assert.True(t, bl.Exists(strings.ToUpper("www.test.com.")))
	assert.False(t, bl.Exists("test.com.fuzz"))

	old := bl.Snapshot()
	bl.Replace(NewSnapshot("other.com"))

	assert.False(t, bl.Exists("test.com"))
	assert.True(t, bl.Exists("other.com"))
	assert.True(t, old.Blocks("test.com"), "previous snapshot must stay intact")

	bl.Replace(nil)
	assert.Equal(t, 0, bl.Length())
}

func Test_BlockListReloadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.txt")

	require.NoError(t, os.WriteFile(path, []byte("# ads\nads.example.com\n\nTRACKER.net\n"), 0600))

	cfg := new(config.Config)
	cfg.BlockListFiles = []string{path}
	cfg.Blocklist = []string{"manual.org"}

	bl := New(cfg)
	require.NoError(t, bl.Reload())

	assert.Equal(t, 3, bl.Length())
	assert.True(t, bl.Exists("x.ads.example.com"))
	assert.True(t, bl.Exists("tracker.net"))
	assert.True(t, bl.Exists("manual.org"))

	cfg.BlockListFiles = []string{filepath.Join(dir, "missing.txt")}
	broken := New(cfg)
	broken.Replace(NewSnapshot("kept.com"))

	assert.Error(t, broken.Reload())
	assert.True(t, broken.Exists("kept.com"), "failed reload must keep the current snapshot")
}

func Test_ParseHostFile(t *testing.T) {
	data := `
# comment line
0.0.0.0 ads.example.com
127.0.0.1	Tracker.Example.NET # trailing comment
plain.example.org
   spaced.example.org

::1 v6.example.com
`
	list, err := ParseHostFile(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ads.example.com",
		"tracker.example.net",
		"plain.example.org",
		"spaced.example.org",
		"v6.example.com",
	}, list)
}

func Test_readFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("facebook.com\nYouTube.com\n"), 0600))

	list, err := readFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook.com", "youtube.com"}, list)

	_, err = readFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func Test_ConcurrentReadersDuringReplace(t *testing.T) {
	a := NewSnapshot("a.example.com", "b.example.com")
	b := NewSnapshot("c.example.com", "d.example.com")
	bl := NewWithSnapshot(a)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				s := bl.Snapshot()
				// a snapshot is either entirely a or entirely b
				if s.Contains("a.example.com") {
					assert.True(t, s.Contains("b.example.com"))
					assert.False(t, s.Contains("c.example.com"))
				} else {
					assert.True(t, s.Contains("c.example.com"))
					assert.True(t, s.Contains("d.example.com"))
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			bl.Replace(b)
		} else {
			bl.Replace(a)
		}
	}

	close(stop)
	wg.Wait()
}

func Test_Watcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("first.com\n"), 0600))

	cfg := new(config.Config)
	cfg.BlockListFiles = []string{path}

	bl := New(cfg)
	require.NoError(t, bl.Reload())
	assert.True(t, bl.Exists("first.com"))

	w, err := NewWatcher(bl)
	require.NoError(t, err)

	reloaded := make(chan struct{}, 1)
	w.Reloaded = func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("second.com\n"), 0600))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("blocklist was not reloaded")
	}

	assert.True(t, bl.Exists("second.com"))
	assert.False(t, bl.Exists("first.com"))

	cancel()
	assert.NoError(t, <-done)
}

func Test_WatcherMissingDir(t *testing.T) {
	cfg := new(config.Config)
	cfg.BlockListFiles = []string{filepath.Join(t.TempDir(), "gone", "list.txt")}

	_, err := NewWatcher(New(cfg))
	assert.Error(t, err)
}

func BenchmarkBlocks(b *testing.B) {
	s := NewSnapshot("example.com", "tracker.net")

	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		s.Blocks("a.b.c.d.example.org")
	}
}
