// Package client implementa a descoberta de servidor, o laço de
// requisição numerada com retransmissão, e a estrutura de três
// goroutines (entrada / laço de requisição / saída) do cliente
// bancário.
package client

import (
	"errors"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/iLukSbr/bankudp/internal/config"
	"github.com/iLukSbr/bankudp/internal/protocol"
)

// ErrNoServer é retornado quando nenhum DISCOVERY_ACK chega dentro de
// config.DiscoveryTimeout.
var ErrNoServer = errors.New("client: nenhum servidor respondeu à descoberta")

// enableBroadcast habilita SO_BROADCAST no socket subjacente de conn —
// sem isso, sendto() para um endereço de broadcast falha com EACCES no
// Linux.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Discover habilita broadcast em um socket UDP efêmero, transmite um
// DISCOVERY para broadcastAddr:port e bloqueia até receber um
// DISCOVERY_ACK ou esgotar config.DiscoveryTimeout. O socket retornado
// já está conectado (net.DialUDP) ao endereço do servidor que
// respondeu, que passa a ser o único par do cliente pelo resto da
// sessão.
func Discover(port int) (*net.UDPConn, error) {
	bcast, err := net.ResolveUDPAddr("udp", net.JoinHostPort(config.BroadcastAddr, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	local, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	if err := enableBroadcast(local); err != nil {
		local.Close()
		return nil, err
	}

	if _, err := local.WriteToUDP(protocol.EncodeDiscovery(), bcast); err != nil {
		local.Close()
		return nil, err
	}

	_ = local.SetReadDeadline(time.Now().Add(config.DiscoveryTimeout))
	buf := make([]byte, config.RecvBufferSize)
	n, from, err := local.ReadFromUDP(buf)
	if err != nil {
		local.Close()
		return nil, ErrNoServer
	}
	p, err := protocol.Decode(buf[:n])
	if err != nil || p.Type != protocol.DiscoveryAck {
		local.Close()
		return nil, ErrNoServer
	}
	local.Close()

	// Religa o socket diretamente ao servidor que respondeu — após a
	// descoberta o cliente já não fala com o endereço de broadcast e
	// não precisa mais de SO_BROADCAST.
	return net.DialUDP("udp", nil, from)
}
