package blocklist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/semihalev/zlog/v2"
)

// Reload reads every configured file plus the manual entries into a new
// snapshot and swaps it in. On error the current snapshot stays in effect.
func (b *BlockList) Reload() error {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()

	domains := append([]string(nil), b.manual...)

	for _, path := range b.files {
		list, err := readFile(path)
		if err != nil {
			return err
		}
		domains = append(domains, list...)
	}

	s := NewSnapshot(domains...)
	b.Replace(s)

	zlog.Info("Blocked domains loaded", "total", s.Len(), "files", len(b.files))

	return nil
}

func readFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening blocklist: %w", err)
	}
	defer file.Close()

	list, err := ParseHostFile(file)
	if err != nil {
		return nil, fmt.Errorf("error parsing blocklist %s: %w", path, err)
	}

	zlog.Debug("Blocklist file read", "path", path, "entries", len(list))

	return list, nil
}

// ParseHostFile reads one domain per line. Blank lines and lines starting
// with # are skipped, trailing comments are dropped, and hosts-file lines
// ("0.0.0.0 ads.example.com") contribute their host name.
func ParseHostFile(r io.Reader) ([]string, error) {
	var list []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		name := fields[0]
		if len(fields) > 1 {
			name = fields[1]
		}

		list = append(list, strings.ToLower(name))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning hostfile: %w", err)
	}

	return list, nil
}
