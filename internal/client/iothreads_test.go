package client

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iLukSbr/bankudp/internal/protocol"
)

func TestThreadsRunProcessesInputLinesInOrder(t *testing.T) {
	server := listenLocal(t)
	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	go func() {
		buf := make([]byte, 64)
		for i := 0; i < 2; i++ {
			n, from, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			p, err := protocol.Decode(buf[:n])
			require.NoError(t, err)
			_, _ = server.WriteToUDP(protocol.EncodeAck(p.Seqn, p.DestIP, p.Value, uint32(100-10*(i+1))), from)
		}
	}()

	in := strings.NewReader("10.1.1.3 10\n10.1.1.3 5\n")
	var out bytes.Buffer
	th := NewThreads(NewLoop(client), in, &out)
	require.NoError(t, th.Run())

	got := out.String()
	require.Contains(t, got, "transferência para 10.1.1.3 valor 10 ok: saldo resultante do remetente 90")
	require.Contains(t, got, "transferência para 10.1.1.3 valor 5 ok: saldo resultante do remetente 80")
}

func TestThreadsRunReportsMalformedLines(t *testing.T) {
	server := listenLocal(t)
	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	in := strings.NewReader("not-an-ip 10\n\n")
	var out bytes.Buffer
	th := NewThreads(NewLoop(client), in, &out)
	require.NoError(t, th.Run())
	require.Contains(t, out.String(), "IPv4 inválido")
}
