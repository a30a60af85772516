// Package accesslog appends one Common Log Format line per answered query.
package accesslog

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/russdns/russdns/config"
	"github.com/russdns/russdns/dnsutil"
)

// AccessLog type
type AccessLog struct {
	mu      sync.Mutex
	logFile *os.File
	now     func() time.Time
}

// New returns a new AccessLog. It is disabled when no file is configured or
// the file cannot be opened.
func New(cfg *config.Config) *AccessLog {
	var logFile *os.File
	var err error

	if cfg.AccessLog != "" {
		logFile, err = os.OpenFile(cfg.AccessLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			zlog.Error("Access log file open failed", "error", strings.Trim(err.Error(), "\n"))
		}
	}

	return &AccessLog{
		logFile: logFile,
		now:     time.Now,
	}
}

// Enabled reports whether records are written.
func (a *AccessLog) Enabled() bool {
	return a != nil && a.logFile != nil
}

// Log writes the record for a reply sent to client. Replies that do not
// parse are logged with placeholders.
func (a *AccessLog) Log(client net.IP, resp []byte) {
	if !a.Enabled() {
		return
	}

	question, cd, rcode := "\"-\"", "-cd", "-"

	msg := new(dns.Msg)
	if err := msg.Unpack(resp); err == nil {
		if len(msg.Question) > 0 {
			question = "\"" + dnsutil.FormatQuestion(msg.Question[0]) + "\""
		}
		if msg.CheckingDisabled {
			cd = "+cd"
		}
		rcode = dns.RcodeToString[msg.Rcode]
	}

	ip := "-"
	if client != nil {
		ip = client.String()
	}

	record := []string{
		ip + " -",
		"[" + a.now().Format("02/Jan/2006:15:04:05 -0700") + "]",
		question,
		"udp",
		cd,
		rcode,
		strconv.Itoa(len(resp)),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.logFile.WriteString(strings.Join(record, " ") + "\n")
	if err != nil {
		zlog.Error("Access log write failed", "error", strings.Trim(err.Error(), "\n"))
	}
}

// Close closes the log file.
func (a *AccessLog) Close() error {
	if !a.Enabled() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.logFile.Close()
}
