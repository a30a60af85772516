package mock

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Upstream(t *testing.T) {
	u, err := NewUpstream(Answer("192.0.2.1", 300))
	require.NoError(t, err)
	defer u.Close()

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := c.Exchange(req, u.Addr())
	require.NoError(t, err)

	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())
	assert.Equal(t, 1, u.Queries())
	assert.Len(t, u.Received(), 1)
}

func Test_UpstreamSpoofed(t *testing.T) {
	u, err := NewUpstream(Spoofed(Echo()))
	require.NoError(t, err)
	defer u.Close()

	conn, err := net.Dial("udp", u.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe, 0x02, 0x03}, buf[:n])

	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf[:n])
}
