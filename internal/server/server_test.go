package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iLukSbr/bankudp/internal/protocol"
)

// startTestServer liga em uma porta efêmera de loopback e retorna seu
// endereço; o servidor é derrubado quando o teste termina.
func startTestServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	srv := New()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = srv.Run(ctx, "127.0.0.1", 0)
	}()

	// Porta 0 deixa a escolha ao SO; Run não sinaliza prontidão, então
	// sondamos até a goroutine do listener ter atribuído conn.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.conn != nil {
			return srv.conn.LocalAddr().(*net.UDPAddr)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("servidor não ligou a tempo")
	return nil
}

// dialClient conecta a partir de localIP (todo 127.0.0.0/8 é loopback no
// Linux) para que clientes distintos no mesmo teste tenham identidades
// de origem distintas — a chave do registro do servidor é só o IPv4,
// então dois sockets client saindo do mesmo 127.0.0.1 colidiriam no
// mesmo ClientRecord.
func dialClient(t *testing.T, addr *net.UDPAddr, localIP string) *net.UDPConn {
	t.Helper()
	laddr := &net.UDPAddr{IP: net.ParseIP(localIP)}
	conn, err := net.DialUDP("udp", laddr, addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func discover(t *testing.T, conn *net.UDPConn) {
	t.Helper()
	_, err := conn.Write(protocol.EncodeDiscovery())
	require.NoError(t, err)
	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	p, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, protocol.DiscoveryAck, p.Type)
}

func TestServerDiscoveryAndTransfer(t *testing.T) {
	addr := startTestServer(t)

	a := dialClient(t, addr, "127.0.0.2")
	b := dialClient(t, addr, "127.0.0.3")
	discover(t, a)
	discover(t, b)

	bIP, err := protocol.IPToUint32(net.ParseIP("127.0.0.3"))
	require.NoError(t, err)

	_, err = a.Write(protocol.EncodeReq(1, bIP, 10))
	require.NoError(t, err)

	buf := make([]byte, 64)
	_ = a.SetReadDeadline(time.Now().Add(time.Second))
	n, err := a.Read(buf)
	require.NoError(t, err)
	p, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, protocol.AckReq, p.Type)
	require.Equal(t, uint32(1), p.Seqn)
	require.Equal(t, uint32(90), p.Balance)
}

func TestServerUnknownOriginGetsErrorReq(t *testing.T) {
	addr := startTestServer(t)
	a := dialClient(t, addr, "127.0.0.4")

	_, err := a.Write(protocol.EncodeReq(1, 0, 10))
	require.NoError(t, err)

	buf := make([]byte, 64)
	_ = a.SetReadDeadline(time.Now().Add(time.Second))
	n, err := a.Read(buf)
	require.NoError(t, err)
	p, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, protocol.ErrorReq, p.Type)
}
