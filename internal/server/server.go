// Package server implementa o shell de concorrência do servidor
// bancário: laço de recepção único, pool fixo de workers, e o
// emissor de log ordenado.
//
// Um único laço de recepção (`receiveLoop`) lê o socket e despacha cada
// datagrama para um pool de tamanho fixo de workers, gerenciados por um
// golang.org/x/sync/errgroup.Group — o mesmo pacote que nabbar-golib
// importa para orquestrar grupos de goroutines com propagação do
// primeiro erro fatal. Cada worker escreve sua resposta de volta no
// mesmo *net.UDPConn (`conn.WriteToUDP`) fora da seção crítica do
// estado do banco.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iLukSbr/bankudp/internal/bank"
	"github.com/iLukSbr/bankudp/internal/config"
	"github.com/iLukSbr/bankudp/internal/logger"
	"github.com/iLukSbr/bankudp/internal/protocol"
)

// pollInterval limita quanto tempo uma chamada de leitura do socket
// bloqueia, para que receiveLoop observe ctx.Done() entre datagramas
// sem precisar de um mecanismo real de cancelamento de socket.
const pollInterval = 250 * time.Millisecond

// datagram é uma unidade de trabalho enfileirada pelo receive loop
// para um worker: os bytes recebidos (cópia) e o remetente.
type datagram struct {
	payload []byte
	from    *net.UDPAddr
}

// Server possui o socket UDP, o estado do banco, o pool de workers e o
// emissor de log. Uma instância atende exatamente uma porta.
type Server struct {
	conn  *net.UDPConn
	state *bank.State
	log   *logger.Logger
	mtr   *Metrics

	// orderMu serializa o par mutação+enfileiramento-de-linha entre os
	// workers, para que linhas de eventos da mesma origem cheguem a
	// s.lines na mesma ordem em que suas mutações foram aplicadas. Sem
	// ele, dois workers processando datagramas da mesma origem poderiam
	// sair de bank.State.Process numa ordem e perder a corrida de
	// agendamento para enfileirar suas linhas na ordem oposta.
	orderMu sync.Mutex

	tasks chan datagram
	lines chan string
}

// New cria um Server ainda não ligado a um socket; chame Run para
// vincular a porta e bloquear processando datagramas.
func New() *Server {
	state := bank.NewState()
	mtr := NewMetrics()
	mtr.registerBankGauges(state)
	return &Server{
		state: state,
		log:   logger.Default("server"),
		mtr:   mtr,
		tasks: make(chan datagram, config.TaskQueueDepth),
		lines: make(chan string, config.TaskQueueDepth),
	}
}

// Metrics expõe o coletor Prometheus para que cmd/server possa
// registrá-lo e servir /metrics.
func (s *Server) Metrics() *Metrics { return s.mtr }

// Run liga o socket UDP em host:port, inicia o pool de workers e o
// emissor de log, e bloqueia até que ctx seja cancelado ou ocorra um
// erro fatal de I/O. Erros de bind/listen são retornados imediatamente
// para que o chamador trate a falha de inicialização como fatal.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("server: resolve: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	_ = conn.SetReadBuffer(config.SocketReadBuffer)
	_ = conn.SetWriteBuffer(config.SocketWriteBuffer)

	s.lines <- startupLine()

	g, gctx := errgroup.WithContext(ctx)

	// O desligamento percorre o pipeline pelo fechamento dos canais:
	// receiveLoop fecha tasks ao retornar; os workers drenam tasks e
	// terminam; lines fecha quando o último worker termina; emitLoop
	// drena lines e termina. Assim nenhum worker fica bloqueado
	// enfileirando uma linha sem consumidor.
	var workers sync.WaitGroup
	workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		g.Go(func() error {
			defer workers.Done()
			s.workerLoop()
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(s.lines)
		return nil
	})

	g.Go(func() error {
		return s.emitLoop()
	})

	g.Go(func() error {
		return s.receiveLoop(gctx)
	})

	return g.Wait()
}

// receiveLoop é o único leitor do socket. Enfileira uma cópia do
// datagrama no canal de tarefas; quando a fila está cheia, bloqueia —
// a contrapressão que limita quanto trabalho pode se acumular à frente
// do pool de workers.
func (s *Server) receiveLoop(ctx context.Context) error {
	defer close(s.tasks)
	buf := make([]byte, config.RecvBufferSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WithField("addr", s.conn.LocalAddr()).Errorf("recvfrom: %v", err)
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case s.tasks <- datagram{payload: cp, from: addr}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// workerLoop é executado por config.WorkerCount goroutines. Cada uma
// consome datagramas do canal de tarefas compartilhado até ele fechar,
// classificando e processando cada um de forma independente.
func (s *Server) workerLoop() {
	for d := range s.tasks {
		s.handleDatagram(d)
	}
}

// handleDatagram decodifica um datagrama e despacha para o handler do
// tipo correspondente. Datagramas malformados ou de tipo desconhecido
// são descartados silenciosamente.
func (s *Server) handleDatagram(d datagram) {
	p, err := protocol.Decode(d.payload)
	if err != nil {
		s.mtr.IncDropped()
		return
	}
	switch p.Type {
	case protocol.Discovery:
		s.handleDiscovery(d.from)
	case protocol.Req:
		s.handleReq(d.from, p)
	default:
		// DISCOVERY_ACK, ACK_REQ, ERROR_REQ não são esperados do
		// cliente; unknown types inexistentes já caíram em err acima.
		s.mtr.IncDropped()
	}
}

// handleDiscovery cadastra o cliente (se novo) e responde DISCOVERY_ACK.
// Redescoberta de um cliente já conhecido não altera seu estado — um
// cliente que já tem saldo e sequência em andamento não é reiniciado
// por uma nova rodada de descoberta.
func (s *Server) handleDiscovery(from *net.UDPAddr) {
	ip, err := protocol.IPToUint32(from.IP)
	if err != nil {
		s.log.WithField("addr", from.String()).Warnf("descoberta de endereço não-IPv4: %v", err)
		return
	}
	_, created := s.state.Insert(ip, config.InitialBalance)
	if created {
		s.mtr.IncClientsRegistered()
		s.log.Debugf("desc from %s -> DESC_ACK sent (novo cliente)", from.IP)
	} else {
		s.log.Debugf("desc from %s -> DESC_ACK sent (já conhecido)", from.IP)
	}
	_, _ = s.conn.WriteToUDP(protocol.EncodeDiscoveryAck(), from)
}

// handleReq processa uma requisição de transferência/consulta e
// responde com o ACK_REQ (ou ERROR_REQ) apropriado. O outcome é
// calculado dentro da seção crítica de bank.State.Process; a resposta é
// montada a partir dele e enviada fora dela, para manter a seção
// crítica restrita à mutação do estado.
func (s *Server) handleReq(from *net.UDPAddr, p protocol.Packet) {
	origIP, err := protocol.IPToUint32(from.IP)
	if err != nil {
		s.log.WithField("addr", from.String()).Warnf("REQ de endereço não-IPv4: %v", err)
		return
	}

	s.orderMu.Lock()
	out := s.state.Process(origIP, p.Seqn, p.DestIP, p.Value)

	if !out.OriginKnown {
		s.orderMu.Unlock()
		s.mtr.IncUnknownOrigin()
		_, _ = s.conn.WriteToUDP(protocol.EncodeError(p.Seqn), from)
		return
	}

	if out.Duplicate {
		s.lines <- duplicateLine(from.IP, out.AckSeq, out.DestIP, out.Value, out.Snapshot)
		s.orderMu.Unlock()
		s.mtr.IncDuplicates()
	} else if out.Processed {
		s.lines <- processedLine(from.IP, p.Seqn, p.DestIP, p.Value, out.Snapshot)
		s.orderMu.Unlock()
	} else {
		// Fora de ordem: não emite linha de evento, só o ACK do último
		// estado conhecido.
		s.orderMu.Unlock()
		s.mtr.IncOutOfOrder()
	}

	ack := protocol.EncodeAck(out.AckSeq, out.DestIP, out.Value, out.NewBalance)
	_, _ = s.conn.WriteToUDP(ack, from)
}
